// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoDB struct {
	Client        *mongo.Client
	Conversations *mongo.Collection
	Messages      *mongo.Collection
	Reactions     *mongo.Collection
	Notifications *mongo.Collection

	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

func NewMongoDB(uri, database string, logger *slog.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", "database", database)

	m := NewMongoFromDatabase(client.Database(database), logger)
	if err := m.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMongoFromDatabase builds the store on top of an existing database handle.
func NewMongoFromDatabase(db *mongo.Database, logger *slog.Logger) *MongoDB {
	return &MongoDB{
		Client:        db.Client(),
		Conversations: db.Collection("conversations"),
		Messages:      db.Collection("messages"),
		Reactions:     db.Collection("message_reactions"),
		Notifications: db.Collection("notifications"),
		logger:        logger,
		newID:         func() string { return uuid.New().String() },
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the unique keys the store relies on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := m.Conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participant1", Value: 1}, {Key: "participant2", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to index conversations: %w", err)
	}
	_, err = m.Messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "sentAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to index messages: %w", err)
	}
	_, err = m.Reactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "messageId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to index reactions: %w", err)
	}
	_, err = m.Notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isRead", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to index notifications: %w", err)
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Ping(ctx context.Context) error {
	if err := m.Client.Ping(ctx, readpref.Primary()); err != nil {
		return utils.NewAppError(utils.ErrStoreUnavailable, "mongodb unreachable", err)
	}
	return nil
}

func mongoError(message string, err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrConcurrencyConflict, message, err)
	}
	return utils.NewDatabaseError(message, err)
}

// GetOrCreateConversation upserts on the unique participant pair. Two racing
// upserts can both miss and one then fails with a duplicate key; the retry
// finds the winner's document.
func (m *MongoDB) GetOrCreateConversation(ctx context.Context, userA, userB string, projectID *string) (*models.Conversation, bool, error) {
	if err := validatePair(userA, userB); err != nil {
		return nil, false, err
	}
	p1, p2 := models.CanonicalPair(userA, userB)

	upsert := func() (*models.Conversation, bool, error) {
		id := m.newID()
		now := m.now()
		insert := bson.M{
			"_id":                id,
			"unreadCountP1":      0,
			"unreadCountP2":      0,
			"createdAt":          now,
			"updatedAt":          now,
			"lastMessagePreview": "",
		}
		if projectID != nil {
			insert["projectId"] = *projectID
		}
		var conv models.Conversation
		err := m.Conversations.FindOneAndUpdate(ctx,
			bson.M{"participant1": p1, "participant2": p2},
			bson.M{"$setOnInsert": insert},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&conv)
		if err != nil {
			return nil, false, mongoError("failed to upsert conversation", err)
		}
		return &conv, conv.ID == id, nil
	}

	conv, created, err := upsert()
	if utils.IsErrorCode(err, utils.ErrConcurrencyConflict) {
		m.logger.Debug("conversation upsert raced, retrying", "participant1", p1, "participant2", p2)
		conv, created, err = upsert()
	}
	return conv, created, err
}

func (m *MongoDB) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := m.Conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewNotFoundError("conversation")
		}
		return nil, mongoError("failed to find conversation", err)
	}
	return &conv, nil
}

// PostMessage inserts the message, bumps the recipient's counter with $inc and
// advances the preview, all in one multi-document transaction.
func (m *MongoDB) PostMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	in, err := normalizeMessage(in)
	if err != nil {
		return nil, err
	}

	session, err := m.Client.StartSession()
	if err != nil {
		return nil, mongoError("failed to start session", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		conv, err := m.GetConversation(sc, in.ConversationID)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(in.SenderID) {
			return nil, utils.NewNotParticipantError()
		}

		msg := buildMessage(m.newID(), in, m.now())
		if _, err := m.Messages.InsertOne(sc, msg); err != nil {
			return nil, mongoError("failed to insert message", err)
		}

		counter := "unreadCountP1"
		if in.SenderID == conv.Participant1 {
			counter = "unreadCountP2"
		}
		_, err = m.Conversations.UpdateOne(sc,
			bson.M{"_id": conv.ID},
			bson.M{"$inc": bson.M{counter: 1}, "$set": bson.M{"updatedAt": msg.SentAt}},
		)
		if err != nil {
			return nil, mongoError("failed to increment unread counter", err)
		}
		_, err = m.Conversations.UpdateOne(sc,
			bson.M{"_id": conv.ID, "$or": bson.A{
				bson.M{"lastMessageAt": nil},
				bson.M{"lastMessageAt": bson.M{"$lte": msg.SentAt}},
			}},
			bson.M{"$set": bson.M{"lastMessageAt": msg.SentAt, "lastMessagePreview": msg.PreviewText()}},
		)
		if err != nil {
			return nil, mongoError("failed to update conversation preview", err)
		}
		return msg, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Message), nil
}

func (m *MongoDB) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := m.Messages.FindOne(ctx, bson.M{"_id": messageID, "isDeleted": false}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewNotFoundError("message")
		}
		return nil, mongoError("failed to find message", err)
	}
	return &msg, nil
}

func (m *MongoDB) DeleteMessage(ctx context.Context, messageID, userID string) error {
	session, err := m.Client.StartSession()
	if err != nil {
		return mongoError("failed to start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var msg models.Message
		if err := m.Messages.FindOne(sc, bson.M{"_id": messageID}).Decode(&msg); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, utils.NewNotFoundError("message")
			}
			return nil, mongoError("failed to find message", err)
		}
		if msg.SenderID != userID {
			return nil, utils.NewAppError(utils.ErrForbidden, "only the sender can delete a message", nil)
		}
		if msg.IsDeleted {
			return nil, nil
		}
		if _, err := m.Messages.UpdateOne(sc, bson.M{"_id": messageID}, bson.M{"$set": bson.M{"isDeleted": true}}); err != nil {
			return nil, mongoError("failed to delete message", err)
		}

		update := bson.M{"$set": bson.M{"updatedAt": m.now(), "lastMessagePreview": ""}, "$unset": bson.M{"lastMessageAt": ""}}
		var latest models.Message
		err := m.Messages.FindOne(sc,
			bson.M{"conversationId": msg.ConversationID, "isDeleted": false},
			options.FindOne().SetSort(bson.D{{Key: "sentAt", Value: -1}}),
		).Decode(&latest)
		switch {
		case err == nil:
			update = bson.M{"$set": bson.M{
				"updatedAt":          m.now(),
				"lastMessageAt":      latest.SentAt,
				"lastMessagePreview": latest.PreviewText(),
			}}
		case !errors.Is(err, mongo.ErrNoDocuments):
			return nil, mongoError("failed to find latest message", err)
		}
		if _, err := m.Conversations.UpdateOne(sc, bson.M{"_id": msg.ConversationID}, update); err != nil {
			return nil, mongoError("failed to update conversation preview", err)
		}
		return nil, nil
	})
	return err
}

// MarkConversationRead stamps the other participant's unread messages and
// zeroes userID's counter in one transaction. A post committing in between
// touches the same conversation document, so one of the two transactions
// hits a write conflict and is retried.
func (m *MongoDB) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	session, err := m.Client.StartSession()
	if err != nil {
		return mongoError("failed to start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		conv, err := m.GetConversation(sc, conversationID)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(userID) {
			return nil, utils.NewNotParticipantError()
		}

		_, err = m.Messages.UpdateMany(sc,
			bson.M{"conversationId": conversationID, "senderId": bson.M{"$ne": userID}, "isRead": false},
			bson.M{"$set": bson.M{"isRead": true, "readAt": m.now()}},
		)
		if err != nil {
			return nil, mongoError("failed to mark messages read", err)
		}

		counter := "unreadCountP2"
		if conv.Participant1 == userID {
			counter = "unreadCountP1"
		}
		if _, err := m.Conversations.UpdateOne(sc, bson.M{"_id": conversationID}, bson.M{"$set": bson.M{counter: 0}}); err != nil {
			return nil, mongoError("failed to reset unread counter", err)
		}
		return nil, nil
	})
	return err
}

func (m *MongoDB) React(ctx context.Context, messageID, userID string, reaction models.ReactionType) error {
	if !reaction.Valid() {
		return utils.NewValidationError("unknown reaction type")
	}
	msg, err := m.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	conv, err := m.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return utils.NewNotParticipantError()
	}

	_, err = m.Reactions.UpdateOne(ctx,
		bson.M{"messageId": messageID, "userId": userID},
		bson.M{
			"$set":         bson.M{"reactionType": reaction},
			"$setOnInsert": bson.M{"createdAt": m.now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return mongoError("failed to record reaction", err)
	}
	return nil
}

func (m *MongoDB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := validateNotification(n); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = m.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	if _, err := m.Notifications.InsertOne(ctx, n); err != nil {
		return mongoError("failed to insert notification", err)
	}
	return nil
}

func (m *MongoDB) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	result, err := m.Notifications.UpdateOne(ctx,
		bson.M{"_id": notificationID, "userId": userID},
		mongo.Pipeline{{{Key: "$set", Value: bson.M{
			"isRead": true,
			"readAt": bson.M{"$ifNull": bson.A{"$readAt", m.now()}},
		}}}},
	)
	if err != nil {
		return false, mongoError("failed to mark notification read", err)
	}
	return result.MatchedCount > 0, nil
}
