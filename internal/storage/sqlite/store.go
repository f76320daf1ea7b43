// Package sqlite registers the sqlite history store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"edge-redirector/internal/storage"
)

var dialect = storage.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS publish_history (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL,
			cloned_from INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			snippets INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			failed_step TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_publish_history_service ON publish_history(service_id, created_at)`,
	},
}

// NewStore opens the database at config.DatabasePath.
func NewStore(config *Config) (*storage.SQLHistoryStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.NewSQLHistoryStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.HistoryStore, error) {
	var (
		store *storage.SQLHistoryStore
		err   error
	)
	switch c := config.(type) {
	case *Config:
		store, err = NewStore(c)
	case storage.GenericConfig:
		store, err = NewStore(&Config{DatabasePath: c.String("path")})
	default:
		err = fmt.Errorf("invalid config type for SQLite storage")
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
