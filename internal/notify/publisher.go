package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/session"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"
)

// Creator persists notifications.
type Creator interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Publisher pushes notifications to the live connections of their owner.
type Publisher struct {
	store    Creator
	registry websocket.Registry
	metrics  *utils.MetricsCollector
	logger   *slog.Logger
}

func NewPublisher(store Creator, registry websocket.Registry, metrics *utils.MetricsCollector, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, registry: registry, metrics: metrics, logger: logger}
}

// Publish sends an already persisted notification to notify:{UserID}. Users
// with no open notification connection simply miss the push.
func (p *Publisher) Publish(ctx context.Context, n *models.Notification) error {
	if n == nil || n.UserID == "" {
		return utils.NewValidationError("notification owner is required")
	}
	frame, err := json.Marshal(session.NewNotificationEvent(n))
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	ev := websocket.Event{Type: session.EventNotification, Frame: frame}
	if err := p.registry.Publish(ctx, websocket.NotificationRoom(n.UserID), ev); err != nil {
		p.metrics.IncrementErrors(err)
		return utils.NewAppError(utils.ErrTransport, "failed to publish notification", err)
	}
	p.metrics.EventPublished(session.EventNotification)
	p.logger.Debug("notification pushed", "notification", n.ID, "user", n.UserID)
	return nil
}

// Create persists n and then pushes it. A push failure is logged and does
// not undo the stored notification.
func (p *Publisher) Create(ctx context.Context, n *models.Notification) error {
	if err := p.store.CreateNotification(ctx, n); err != nil {
		return err
	}
	if err := p.Publish(ctx, n); err != nil {
		p.logger.Warn("notification stored but not pushed", "notification", n.ID, "error", err)
	}
	return nil
}
