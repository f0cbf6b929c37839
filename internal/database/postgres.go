// internal/database/postgres.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"investafrik-messaging/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, logger *slog.Logger) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ping the database to verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("connected to PostgreSQL")
	return NewPostgresFromDB(db, logger), nil
}

// NewPostgresFromDB wraps an existing handle.
func NewPostgresFromDB(db *sqlx.DB, logger *slog.Logger) *PostgresDB {
	return &PostgresDB{
		DB:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	p.logger.Info("closing PostgreSQL connection")
	return p.DB.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	if err := p.DB.PingContext(ctx); err != nil {
		return utils.NewAppError(utils.ErrStoreUnavailable, "postgres unreachable", err)
	}
	return nil
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name  string
		query string
	}{
		{"messaging_conversation", `
			CREATE TABLE IF NOT EXISTS messaging_conversation (
				id UUID PRIMARY KEY,
				participant_1 TEXT NOT NULL,
				participant_2 TEXT NOT NULL,
				project_id TEXT,
				unread_count_p1 INTEGER NOT NULL DEFAULT 0 CHECK (unread_count_p1 >= 0),
				unread_count_p2 INTEGER NOT NULL DEFAULT 0 CHECK (unread_count_p2 >= 0),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				last_message_at TIMESTAMP WITH TIME ZONE,
				last_message_preview VARCHAR(100) NOT NULL DEFAULT '',
				UNIQUE (participant_1, participant_2),
				CHECK (participant_1 < participant_2)
			)`},
		{"messaging_message", `
			CREATE TABLE IF NOT EXISTS messaging_message (
				id UUID PRIMARY KEY,
				conversation_id UUID NOT NULL REFERENCES messaging_conversation(id),
				sender_id TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				message_type VARCHAR(10) NOT NULL DEFAULT 'text',
				attachment TEXT,
				attachment_name VARCHAR(255) NOT NULL DEFAULT '',
				attachment_size BIGINT,
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				read_at TIMESTAMP WITH TIME ZONE,
				is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`},
		{"messaging_message index", `
			CREATE INDEX IF NOT EXISTS messaging_message_conversation_sent_at
				ON messaging_message (conversation_id, sent_at)`},
		{"messaging_messagereaction", `
			CREATE TABLE IF NOT EXISTS messaging_messagereaction (
				message_id UUID NOT NULL REFERENCES messaging_message(id),
				user_id TEXT NOT NULL,
				reaction_type VARCHAR(10) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (message_id, user_id)
			)`},
		{"notifications_notification", `
			CREATE TABLE IF NOT EXISTS notifications_notification (
				id UUID PRIMARY KEY,
				user_id TEXT NOT NULL,
				notification_type VARCHAR(30) NOT NULL,
				title VARCHAR(200) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				link TEXT NOT NULL DEFAULT '',
				project_id TEXT,
				investment_id TEXT,
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				read_at TIMESTAMP WITH TIME ZONE,
				priority VARCHAR(10) NOT NULL DEFAULT 'normal',
				email_sent BOOLEAN NOT NULL DEFAULT FALSE,
				email_sent_at TIMESTAMP WITH TIME ZONE,
				push_sent BOOLEAN NOT NULL DEFAULT FALSE,
				push_sent_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`},
		{"notifications_notification index", `
			CREATE INDEX IF NOT EXISTS notifications_notification_user_read
				ON notifications_notification (user_id, is_read)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

// withRetry runs op again once when it failed on a serialization or
// deadlock error.
func (p *PostgresDB) withRetry(ctx context.Context, operation string, op func() error) error {
	err := op()
	if err == nil || !utils.IsErrorCode(err, utils.ErrConcurrencyConflict) {
		return err
	}
	p.logger.Warn("retrying after concurrency conflict", "operation", operation, "error", err)
	if ctx.Err() != nil {
		return err
	}
	return op()
}

// pgError maps driver errors onto the application taxonomy.
func pgError(message string, err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return utils.NewAppError(utils.ErrConcurrencyConflict, message, err)
		}
	}
	return utils.NewDatabaseError(message, err)
}

// validID guards UUID columns so malformed ids read as "not found" rather
// than driver errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
