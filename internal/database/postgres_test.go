package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"investafrik-messaging/internal/logging"
	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConversationID = "5b0a6f0e-3d2c-4c1e-9a54-0f8f6b8f1a01"

func newMockPostgres(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresFromDB(sqlx.NewDb(db, "postgres"), logging.Discard()), mock
}

func conversationRows(id, p1, p2 string, unreadP1, unreadP2 int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "participant_1", "participant_2", "project_id", "unread_count_p1", "unread_count_p2",
		"created_at", "updated_at", "last_message_at", "last_message_preview",
	}).AddRow(id, p1, p2, nil, unreadP1, unreadP2, now, now, nil, "")
}

// lockedParticipantsQuery matches the row-locking participant read shared by
// posts and mark-reads.
const lockedParticipantsQuery = `SELECT participant_1, participant_2 FROM messaging_conversation WHERE id = \$1 FOR UPDATE`

const testMessageID = "9c1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

func participantRows(p1, p2 string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"participant_1", "participant_2"}).AddRow(p1, p2)
}

func TestPostgresGetOrCreateInsertsCanonicalPair(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(`INSERT INTO messaging_conversation`).
		WithArgs(sqlmock.AnyArg(), "alice", "bob", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(conversationRows(testConversationID, "alice", "bob", 0, 0))

	conv, created, err := store.GetOrCreateConversation(context.Background(), "bob", "alice", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", conv.Participant1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetOrCreateReturnsExistingRowOnConflict(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(`INSERT INTO messaging_conversation`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT .+ FROM messaging_conversation WHERE participant_1 = \$1 AND participant_2 = \$2`).
		WithArgs("alice", "bob").
		WillReturnRows(conversationRows(testConversationID, "alice", "bob", 3, 0))

	conv, created, err := store.GetOrCreateConversation(context.Background(), "alice", "bob", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, testConversationID, conv.ID)
	assert.Equal(t, 3, conv.UnreadCountP1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSelfConversationRejected(t *testing.T) {
	store, mock := newMockPostgres(t)

	_, _, err := store.GetOrCreateConversation(context.Background(), "alice", "alice", nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostMessageIncrementsRecipientCounter(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockedParticipantsQuery).
		WithArgs(testConversationID).
		WillReturnRows(participantRows("alice", "bob"))
	mock.ExpectExec(`INSERT INTO messaging_message`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE messaging_conversation SET\s+unread_count_p2 = unread_count_p2 \+ 1`).
		WithArgs(testConversationID, sqlmock.AnyArg(), "hello").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := store.PostMessage(context.Background(), models.NewMessage{
		ConversationID: testConversationID,
		SenderID:       "alice",
		Content:        "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, models.MessageText, msg.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostMessageRejectsOutsider(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockedParticipantsQuery).
		WillReturnRows(participantRows("alice", "bob"))
	mock.ExpectRollback()

	_, err := store.PostMessage(context.Background(), models.NewMessage{
		ConversationID: testConversationID,
		SenderID:       "mallory",
		Content:        "hello",
	})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotParticipant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostMessageRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockedParticipantsQuery).WillReturnRows(participantRows("alice", "bob"))
	mock.ExpectExec(`INSERT INTO messaging_message`).WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(lockedParticipantsQuery).WillReturnRows(participantRows("alice", "bob"))
	mock.ExpectExec(`INSERT INTO messaging_message`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`unread_count_p1 = unread_count_p1 \+ 1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.PostMessage(context.Background(), models.NewMessage{
		ConversationID: testConversationID,
		SenderID:       "bob",
		Content:        "again",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostMessageValidatesBeforeQuerying(t *testing.T) {
	store, mock := newMockPostgres(t)

	_, err := store.PostMessage(context.Background(), models.NewMessage{
		ConversationID: testConversationID,
		SenderID:       "alice",
		Content:        " \n\t",
	})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, err = store.PostMessage(context.Background(), models.NewMessage{
		ConversationID: "not-a-uuid",
		SenderID:       "alice",
		Content:        "hi",
	})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkConversationReadLocksConversation(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockedParticipantsQuery).
		WithArgs(testConversationID).
		WillReturnRows(participantRows("alice", "bob"))
	mock.ExpectExec(`UPDATE messaging_message SET is_read = TRUE`).
		WithArgs(testConversationID, "bob", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE messaging_conversation SET unread_count_p2 = 0`).
		WithArgs(testConversationID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.MarkConversationRead(context.Background(), testConversationID, "bob"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMessageRecomputesPreview(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT conversation_id, sender_id, is_deleted FROM messaging_message WHERE id = \$1`).
		WithArgs(testMessageID).
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id", "sender_id", "is_deleted"}).
			AddRow(testConversationID, "alice", false))
	mock.ExpectExec(`UPDATE messaging_message SET is_deleted = TRUE WHERE id = \$1`).
		WithArgs(testMessageID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messaging_conversation SET\s+last_message_at = \(SELECT MAX\(sent_at\) FROM messaging_message WHERE conversation_id = \$1 AND is_deleted = FALSE\)`).
		WithArgs(testConversationID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteMessage(context.Background(), testMessageID, "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMessageRejectsNonSender(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT conversation_id, sender_id, is_deleted FROM messaging_message`).
		WithArgs(testMessageID).
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id", "sender_id", "is_deleted"}).
			AddRow(testConversationID, "alice", false))
	mock.ExpectRollback()

	err := store.DeleteMessage(context.Background(), testMessageID, "bob")
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetConversationNotFound(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .+ FROM messaging_conversation WHERE id = \$1`).
		WithArgs(testConversationID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetConversation(context.Background(), testConversationID)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	_, err = store.GetConversation(context.Background(), "garbage")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReactUpserts(t *testing.T) {
	store, mock := newMockPostgres(t)
	messageID := "0d5b6c3e-8f0a-4b43-9c1c-7e3f8a2d4b10"

	mock.ExpectQuery(`FROM messaging_message m JOIN messaging_conversation c`).
		WithArgs(messageID).
		WillReturnRows(participantRows("alice", "bob"))
	mock.ExpectExec(`ON CONFLICT \(message_id, user_id\) DO UPDATE`).
		WithArgs(messageID, "bob", models.ReactionLaugh, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.React(context.Background(), messageID, "bob", models.ReactionLaugh))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkNotificationReadIsOwnerScoped(t *testing.T) {
	store, mock := newMockPostgres(t)
	notificationID := "8a1f4e2b-6c3d-4e5f-a7b8-9c0d1e2f3a4b"

	mock.ExpectExec(`UPDATE notifications_notification SET is_read = TRUE`).
		WithArgs(notificationID, "bob", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE notifications_notification SET is_read = TRUE`).
		WithArgs(notificationID, "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := store.MarkNotificationRead(context.Background(), notificationID, "bob")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.MarkNotificationRead(context.Background(), notificationID, "alice")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.MarkNotificationRead(context.Background(), "nope", "alice")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateNotification(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO notifications_notification`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{UserID: "alice", Type: models.NotificationProjectFunded, Title: "Funded!"}
	require.NoError(t, store.CreateNotification(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.PriorityNormal, n.Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPingReportsUnavailable(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err := store.Ping(context.Background())
	assert.True(t, utils.IsErrorCode(err, utils.ErrStoreUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}
