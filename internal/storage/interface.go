// Package storage keeps the history of publishes. Drivers live in the sqlite and
// postgres subpackages and register themselves on import.
package storage

import (
	"context"
	"time"
)

// Publish outcomes.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// PublishRecord is one publish attempt against a service.
type PublishRecord struct {
	ID         string        `json:"id" yaml:"id"`
	ServiceID  string        `json:"serviceId" yaml:"serviceId"`
	ClonedFrom int           `json:"clonedFrom" yaml:"clonedFrom"`
	Version    int           `json:"version" yaml:"version"`
	Snippets   int           `json:"snippets" yaml:"snippets"`
	Status     string        `json:"status" yaml:"status"`
	FailedStep string        `json:"failedStep,omitempty" yaml:"failedStep,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	CreatedAt  time.Time     `json:"createdAt" yaml:"createdAt"`
}

// HistoryStore persists publish records.
type HistoryStore interface {
	// Record stores rec, assigning an ID when empty.
	Record(ctx context.Context, rec *PublishRecord) error
	// List returns the newest records for serviceID, newest first.
	List(ctx context.Context, serviceID string, limit int) ([]*PublishRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// StorageConfig is the driver-specific connection configuration
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

// StorageFactory opens a HistoryStore for one driver
type StorageFactory interface {
	Create(config StorageConfig) (HistoryStore, error)
	GetType() string
}

// NopHistoryStore discards records. It is used when history is disabled.
type NopHistoryStore struct{}

func (NopHistoryStore) Record(context.Context, *PublishRecord) error { return nil }

func (NopHistoryStore) List(context.Context, string, int) ([]*PublishRecord, error) {
	return []*PublishRecord{}, nil
}

func (NopHistoryStore) Health(context.Context) error { return nil }

func (NopHistoryStore) Close() error { return nil }
