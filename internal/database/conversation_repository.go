package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const conversationColumns = `id, participant_1, participant_2, project_id, unread_count_p1, unread_count_p2,
	created_at, updated_at, last_message_at, last_message_preview`

const messageColumns = `id, conversation_id, sender_id, content, message_type, attachment, attachment_name,
	attachment_size, is_read, read_at, is_deleted, sent_at`

// GetOrCreateConversation returns the single conversation for a pair of users,
// creating it on first use. Concurrent callers for one pair converge on one row
// through the unique (participant_1, participant_2) constraint.
func (p *PostgresDB) GetOrCreateConversation(ctx context.Context, userA, userB string, projectID *string) (*models.Conversation, bool, error) {
	if err := validatePair(userA, userB); err != nil {
		return nil, false, err
	}
	p1, p2 := models.CanonicalPair(userA, userB)

	var conv models.Conversation
	created := false
	err := p.withRetry(ctx, "get_or_create_conversation", func() error {
		now := p.now()
		insertQuery := `
			INSERT INTO messaging_conversation (id, participant_1, participant_2, project_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (participant_1, participant_2) DO NOTHING
			RETURNING ` + conversationColumns
		err := p.DB.GetContext(ctx, &conv, insertQuery, uuid.New().String(), p1, p2, projectID, now)
		if err == nil {
			created = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return pgError("failed to create conversation", err)
		}

		// Another caller won the insert; read its row.
		selectQuery := `SELECT ` + conversationColumns + ` FROM messaging_conversation WHERE participant_1 = $1 AND participant_2 = $2`
		if err := p.DB.GetContext(ctx, &conv, selectQuery, p1, p2); err != nil {
			return pgError("failed to load conversation", err)
		}
		created = false
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

// GetConversation fetches a conversation by its ID.
func (p *PostgresDB) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if !validID(conversationID) {
		return nil, utils.NewNotFoundError("conversation")
	}
	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM messaging_conversation WHERE id = $1`
	if err := p.DB.GetContext(ctx, &conv, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("conversation")
		}
		return nil, pgError("failed to query conversation", err)
	}
	return &conv, nil
}

// participants reads the participant pair inside a transaction and locks the
// conversation row, so posts and mark-reads on one conversation serialise
// across processes.
func participants(ctx context.Context, tx *sqlx.Tx, conversationID string) (string, string, error) {
	var pair struct {
		P1 string `db:"participant_1"`
		P2 string `db:"participant_2"`
	}
	err := tx.GetContext(ctx, &pair, `SELECT participant_1, participant_2 FROM messaging_conversation WHERE id = $1 FOR UPDATE`, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", utils.NewNotFoundError("conversation")
		}
		return "", "", pgError("failed to query conversation", err)
	}
	return pair.P1, pair.P2, nil
}

// PostMessage inserts a message and, in the same transaction, moves the
// conversation preview forward and increments the recipient's unread counter.
func (p *PostgresDB) PostMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	in, err := normalizeMessage(in)
	if err != nil {
		return nil, err
	}
	if !validID(in.ConversationID) {
		return nil, utils.NewNotFoundError("conversation")
	}

	var msg *models.Message
	err = p.withRetry(ctx, "post_message", func() error {
		tx, err := p.DB.BeginTxx(ctx, nil)
		if err != nil {
			return pgError("failed to begin transaction", err)
		}
		defer tx.Rollback() // Rollback is ignored if tx is committed.

		p1, p2, err := participants(ctx, tx, in.ConversationID)
		if err != nil {
			return err
		}
		if in.SenderID != p1 && in.SenderID != p2 {
			return utils.NewNotParticipantError()
		}

		m := buildMessage(uuid.New().String(), in, p.now())
		insertQuery := `
			INSERT INTO messaging_message (` + messageColumns + `)
			VALUES (:id, :conversation_id, :sender_id, :content, :message_type, :attachment, :attachment_name,
				:attachment_size, :is_read, :read_at, :is_deleted, :sent_at)`
		if _, err := tx.NamedExecContext(ctx, insertQuery, m); err != nil {
			return pgError("failed to insert message", err)
		}

		recipientCounter := "unread_count_p1"
		if in.SenderID == p1 {
			recipientCounter = "unread_count_p2"
		}
		updateQuery := fmt.Sprintf(`
			UPDATE messaging_conversation SET
				%[1]s = %[1]s + 1,
				updated_at = $2,
				last_message_preview = CASE WHEN last_message_at IS NULL OR last_message_at <= $2 THEN $3 ELSE last_message_preview END,
				last_message_at = CASE WHEN last_message_at IS NULL OR last_message_at <= $2 THEN $2 ELSE last_message_at END
			WHERE id = $1`, recipientCounter)
		if _, err := tx.ExecContext(ctx, updateQuery, in.ConversationID, m.SentAt, m.PreviewText()); err != nil {
			return pgError("failed to update conversation", err)
		}

		if err := tx.Commit(); err != nil {
			return pgError("failed to commit message", err)
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessage fetches a non-deleted message.
func (p *PostgresDB) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	if !validID(messageID) {
		return nil, utils.NewNotFoundError("message")
	}
	var msg models.Message
	query := `SELECT ` + messageColumns + ` FROM messaging_message WHERE id = $1 AND is_deleted = FALSE`
	if err := p.DB.GetContext(ctx, &msg, query, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("message")
		}
		return nil, pgError("failed to query message", err)
	}
	return &msg, nil
}

// DeleteMessage soft-deletes a message on behalf of its sender and points the
// conversation preview back at the latest surviving message.
func (p *PostgresDB) DeleteMessage(ctx context.Context, messageID, userID string) error {
	if !validID(messageID) {
		return utils.NewNotFoundError("message")
	}
	return p.withRetry(ctx, "delete_message", func() error {
		tx, err := p.DB.BeginTxx(ctx, nil)
		if err != nil {
			return pgError("failed to begin transaction", err)
		}
		defer tx.Rollback()

		var row struct {
			ConversationID string `db:"conversation_id"`
			SenderID       string `db:"sender_id"`
			IsDeleted      bool   `db:"is_deleted"`
		}
		err = tx.GetContext(ctx, &row, `SELECT conversation_id, sender_id, is_deleted FROM messaging_message WHERE id = $1`, messageID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return utils.NewNotFoundError("message")
			}
			return pgError("failed to query message", err)
		}
		if row.SenderID != userID {
			return utils.NewAppError(utils.ErrForbidden, "only the sender can delete a message", nil)
		}
		if row.IsDeleted {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE messaging_message SET is_deleted = TRUE WHERE id = $1`, messageID); err != nil {
			return pgError("failed to delete message", err)
		}
		recompute := `
			UPDATE messaging_conversation SET
				last_message_at = (SELECT MAX(sent_at) FROM messaging_message WHERE conversation_id = $1 AND is_deleted = FALSE),
				last_message_preview = COALESCE((
					SELECT LEFT(CASE WHEN content = '' THEN attachment_name ELSE content END, 100)
					FROM messaging_message
					WHERE conversation_id = $1 AND is_deleted = FALSE
					ORDER BY sent_at DESC LIMIT 1), ''),
				updated_at = $2
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, recompute, row.ConversationID, p.now()); err != nil {
			return pgError("failed to update conversation preview", err)
		}
		if err := tx.Commit(); err != nil {
			return pgError("failed to commit delete", err)
		}
		return nil
	})
}

// MarkConversationRead zeroes userID's unread counter and stamps every unread
// message from the other participant.
func (p *PostgresDB) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	if !validID(conversationID) {
		return utils.NewNotFoundError("conversation")
	}
	return p.withRetry(ctx, "mark_conversation_read", func() error {
		tx, err := p.DB.BeginTxx(ctx, nil)
		if err != nil {
			return pgError("failed to begin transaction", err)
		}
		defer tx.Rollback()

		p1, p2, err := participants(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		counter := ""
		switch userID {
		case p1:
			counter = "unread_count_p1"
		case p2:
			counter = "unread_count_p2"
		default:
			return utils.NewNotParticipantError()
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE messaging_message SET is_read = TRUE, read_at = $3
			WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE`,
			conversationID, userID, p.now())
		if err != nil {
			return pgError("failed to mark messages read", err)
		}
		resetQuery := fmt.Sprintf(`UPDATE messaging_conversation SET %s = 0 WHERE id = $1`, counter)
		if _, err := tx.ExecContext(ctx, resetQuery, conversationID); err != nil {
			return pgError("failed to reset unread counter", err)
		}
		if err := tx.Commit(); err != nil {
			return pgError("failed to commit mark read", err)
		}
		return nil
	})
}

// React records userID's reaction to a message, replacing any earlier one.
func (p *PostgresDB) React(ctx context.Context, messageID, userID string, reaction models.ReactionType) error {
	if !reaction.Valid() {
		return utils.NewValidationError("unknown reaction type")
	}
	if !validID(messageID) {
		return utils.NewNotFoundError("message")
	}

	var pair struct {
		P1 string `db:"participant_1"`
		P2 string `db:"participant_2"`
	}
	err := p.DB.GetContext(ctx, &pair, `
		SELECT c.participant_1, c.participant_2
		FROM messaging_message m JOIN messaging_conversation c ON c.id = m.conversation_id
		WHERE m.id = $1 AND m.is_deleted = FALSE`, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.NewNotFoundError("message")
		}
		return pgError("failed to query message", err)
	}
	if userID != pair.P1 && userID != pair.P2 {
		return utils.NewNotParticipantError()
	}

	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO messaging_messagereaction (message_id, user_id, reaction_type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id) DO UPDATE SET reaction_type = EXCLUDED.reaction_type`,
		messageID, userID, reaction, p.now())
	if err != nil {
		return pgError("failed to record reaction", err)
	}
	return nil
}
