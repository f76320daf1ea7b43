package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lucsky/cuid"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
	// Schema is executed once when the store is opened.
	Schema []string
}

// Rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLHistoryStore is a HistoryStore over database/sql.
type SQLHistoryStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLHistoryStore creates the schema if needed and returns the store. The
// store owns db.
func NewSQLHistoryStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLHistoryStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to migrate %s database: %w", dialect.Name, err)
		}
	}

	return &SQLHistoryStore{db: db, dialect: dialect, now: time.Now}, nil
}

const insertPublish = `INSERT INTO publish_history
	(id, service_id, cloned_from, version, snippets, status, failed_step, error, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectPublishes = `SELECT id, service_id, cloned_from, version, snippets, status, failed_step, error, duration_ms, created_at
	FROM publish_history
	WHERE service_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

func (s *SQLHistoryStore) Record(ctx context.Context, rec *PublishRecord) error {
	if rec.ID == "" {
		rec.ID = cuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(insertPublish),
		rec.ID,
		rec.ServiceID,
		rec.ClonedFrom,
		rec.Version,
		rec.Snippets,
		rec.Status,
		rec.FailedStep,
		rec.Error,
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record publish %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLHistoryStore) List(ctx context.Context, serviceID string, limit int) ([]*PublishRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(selectPublishes), serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query publish history: %w", err)
	}
	defer rows.Close()

	records := []*PublishRecord{}
	for rows.Next() {
		var (
			rec        PublishRecord
			durationMS int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ServiceID,
			&rec.ClonedFrom,
			&rec.Version,
			&rec.Snippets,
			&rec.Status,
			&rec.FailedStep,
			&rec.Error,
			&durationMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan publish history: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read publish history: %w", err)
	}

	return records, nil
}

func (s *SQLHistoryStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLHistoryStore) Close() error {
	return s.db.Close()
}
