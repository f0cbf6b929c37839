package database

import (
	"context"
	"fmt"
	"log/slog"

	"investafrik-messaging/internal/config"
)

// Open connects the store selected by cfg.Type. Postgres tables are created
// if they do not exist yet.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case config.StoreTypePostgres:
		db, err := NewPostgresDB(cfg.URI, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("initialize tables: %w", err)
		}
		return db, nil
	case config.StoreTypeMongo:
		db, err := NewMongoDB(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		return db, nil
	case config.StoreTypeMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
}
