package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"investafrik-messaging/internal/database"
	"investafrik-messaging/internal/engine/actors"
	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/cespare/xxhash/v2"
)

var _ database.Store = (*Engine)(nil)

// Engine coordinates communication with the store actors. Calls for one
// shard key always land on the same actor, so work on one conversation is
// serialised while different conversations proceed in parallel.
type Engine struct {
	root    *actor.RootContext
	workers []*actor.PID
	store   database.Store
	timeout time.Duration
	metrics *utils.MetricsCollector
	logger  *slog.Logger
}

func NewEngine(system *actor.ActorSystem, store database.Store, workers int, timeout time.Duration, metrics *utils.MetricsCollector, logger *slog.Logger) *Engine {
	if workers <= 0 {
		workers = 1
	}
	context := system.Root

	pids := make([]*actor.PID, workers)
	for i := range pids {
		props := actor.PropsFromProducer(func() actor.Actor {
			return actors.NewStoreActor(store, metrics, logger)
		})
		pids[i] = context.Spawn(props)
	}

	return &Engine{
		root:    context,
		workers: pids,
		store:   store,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

func (e *Engine) worker(key string) *actor.PID {
	return e.workers[xxhash.Sum64String(key)%uint64(len(e.workers))]
}

// replyGrace is how long the engine keeps waiting for a reply after the
// store call's own deadline has passed, so a store that honours ctx can
// report its rollback instead of the future giving up first.
const replyGrace = 500 * time.Millisecond

// request builds the message with a ctx bounded by the engine timeout and
// waits for the actor's reply. The store call is cancelled with that ctx,
// so a request reported as timed out is never committed later.
func (e *Engine) request(ctx context.Context, key string, build func(context.Context) interface{}) (interface{}, error) {
	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, utils.NewAppError(utils.ErrActorTimeout, "request deadline exceeded", ctx.Err())
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.root.RequestFuture(e.worker(key), build(reqCtx), timeout+replyGrace).Result()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrActorTimeout, "store request timed out", err)
	}
	if err := actors.ReplyError(res); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.NewAppError(utils.ErrActorTimeout, "store request timed out", err)
		}
		return res, err
	}
	return res, nil
}

// call sends the message built by build to the worker owning key. A
// failure that is not the caller's fault is retried once when retry is
// set; if it still fails the store is pinged and an unreachable store is
// reported as StoreUnavailable.
func (e *Engine) call(ctx context.Context, operation, key string, build func(context.Context) interface{}, retry bool) (interface{}, error) {
	res, err := e.request(ctx, key, build)
	if err == nil || utils.IsClientError(err) {
		return res, err
	}

	if retry && ctx.Err() == nil {
		e.logger.Warn("store operation failed, retrying", "operation", operation, "error", err)
		res, err = e.request(ctx, key, build)
		if err == nil || utils.IsClientError(err) {
			return res, err
		}
	}

	if pingErr := e.store.Ping(ctx); pingErr != nil {
		unavailable := utils.NewAppError(utils.ErrStoreUnavailable, "message store unavailable", pingErr)
		e.metrics.IncrementErrors(unavailable)
		e.logger.Error("store unreachable", "operation", operation, "error", pingErr)
		return nil, unavailable
	}
	return nil, err
}

func pairKey(userA, userB string) string {
	p1, p2 := models.CanonicalPair(userA, userB)
	return p1 + "|" + p2
}

func (e *Engine) GetOrCreateConversation(ctx context.Context, userA, userB string, projectID *string) (*models.Conversation, bool, error) {
	res, err := e.call(ctx, "get_or_create_conversation", pairKey(userA, userB), func(ctx context.Context) interface{} {
		return &actors.GetOrCreateConversationMsg{Ctx: ctx, UserA: userA, UserB: userB, ProjectID: projectID}
	}, true)
	if err != nil {
		return nil, false, err
	}
	reply := res.(*actors.ConversationReply)
	return reply.Conversation, reply.Created, nil
}

func (e *Engine) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	res, err := e.call(ctx, "get_conversation", conversationID, func(ctx context.Context) interface{} {
		return &actors.GetConversationMsg{Ctx: ctx, ConversationID: conversationID}
	}, true)
	if err != nil {
		return nil, err
	}
	return res.(*actors.ConversationReply).Conversation, nil
}

// PostMessage is not retried here. Serialization conflicts are retried
// inside the store.
func (e *Engine) PostMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	res, err := e.call(ctx, "post_message", in.ConversationID, func(ctx context.Context) interface{} {
		return &actors.PostMessageMsg{Ctx: ctx, Message: in}
	}, false)
	if err != nil {
		return nil, err
	}
	return res.(*actors.MessageReply).Message, nil
}

func (e *Engine) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	res, err := e.call(ctx, "get_message", messageID, func(ctx context.Context) interface{} {
		return &actors.GetMessageMsg{Ctx: ctx, MessageID: messageID}
	}, true)
	if err != nil {
		return nil, err
	}
	return res.(*actors.MessageReply).Message, nil
}

func (e *Engine) DeleteMessage(ctx context.Context, messageID, userID string) error {
	_, err := e.call(ctx, "delete_message", messageID, func(ctx context.Context) interface{} {
		return &actors.DeleteMessageMsg{Ctx: ctx, MessageID: messageID, UserID: userID}
	}, true)
	return err
}

func (e *Engine) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	_, err := e.call(ctx, "mark_conversation_read", conversationID, func(ctx context.Context) interface{} {
		return &actors.MarkConversationReadMsg{Ctx: ctx, ConversationID: conversationID, UserID: userID}
	}, true)
	return err
}

func (e *Engine) React(ctx context.Context, messageID, userID string, reaction models.ReactionType) error {
	_, err := e.call(ctx, "react", messageID, func(ctx context.Context) interface{} {
		return &actors.ReactMsg{Ctx: ctx, MessageID: messageID, UserID: userID, Reaction: reaction}
	}, true)
	return err
}

func (e *Engine) CreateNotification(ctx context.Context, n *models.Notification) error {
	key := ""
	if n != nil {
		key = n.UserID
	}
	_, err := e.call(ctx, "create_notification", key, func(ctx context.Context) interface{} {
		return &actors.CreateNotificationMsg{Ctx: ctx, Notification: n}
	}, false)
	return err
}

func (e *Engine) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	res, err := e.call(ctx, "mark_notification_read", userID, func(ctx context.Context) interface{} {
		return &actors.MarkNotificationReadMsg{Ctx: ctx, NotificationID: notificationID, UserID: userID}
	}, true)
	if err != nil {
		return false, err
	}
	return res.(*actors.AckReply).Found, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Close stops the store actors and then closes the store.
func (e *Engine) Close(ctx context.Context) error {
	for _, pid := range e.workers {
		if err := e.root.StopFuture(pid).Wait(); err != nil {
			e.logger.Warn("store actor did not stop cleanly", "pid", pid.Id, "error", err)
		}
	}
	return e.store.Close(ctx)
}
