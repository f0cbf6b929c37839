package database

import (
	"context"

	"investafrik-messaging/internal/models"

	"github.com/google/uuid"
)

// CreateNotification persists a notification produced by a business event.
func (p *PostgresDB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := validateNotification(n); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = p.now()
	}

	query := `
		INSERT INTO notifications_notification (
			id, user_id, notification_type, title, message, link, project_id, investment_id,
			is_read, read_at, priority, email_sent, email_sent_at, push_sent, push_sent_at, created_at
		) VALUES (
			:id, :user_id, :notification_type, :title, :message, :link, :project_id, :investment_id,
			:is_read, :read_at, :priority, :email_sent, :email_sent_at, :push_sent, :push_sent_at, :created_at
		)`
	if _, err := p.DB.NamedExecContext(ctx, query, n); err != nil {
		return pgError("failed to insert notification", err)
	}
	return nil
}

// MarkNotificationRead marks a notification read if userID owns it. It
// reports false, without error, for unknown ids and other users' rows.
func (p *PostgresDB) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	if !validID(notificationID) {
		return false, nil
	}
	result, err := p.DB.ExecContext(ctx, `
		UPDATE notifications_notification SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2`,
		notificationID, userID, p.now())
	if err != nil {
		return false, pgError("failed to mark notification read", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, pgError("failed to read update result", err)
	}
	return rows > 0, nil
}
