package fastly

import (
	"context"
	"fmt"
	"time"

	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/compiler"
	"edge-redirector/internal/locks"
	"edge-redirector/internal/storage"
)

// Publish steps, in execution order.
const (
	StepLock     = "lock"
	StepActive   = "active"
	StepClone    = "clone"
	StepDelete   = "delete"
	StepUpload   = "upload"
	StepActivate = "activate"
)

// PublishError reports the first failed step of a publish. Version is the
// version the step worked on, zero before a clone exists.
type PublishError struct {
	Step    string
	Version int
	Err     error
}

func (e *PublishError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("publish step %s (version %d): %v", e.Step, e.Version, e.Err)
	}
	return fmt.Sprintf("publish step %s: %v", e.Step, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PublishResult describes a successful publish.
type PublishResult struct {
	ServiceID  string `json:"serviceId" yaml:"serviceId"`
	ClonedFrom int    `json:"clonedFrom" yaml:"clonedFrom"`
	Version    int    `json:"version" yaml:"version"`
}

// API is the subset of Client the publisher drives.
type API interface {
	ActiveVersion(ctx context.Context, key, serviceID string) (int, error)
	CloneVersion(ctx context.Context, key, serviceID string, version int) (int, error)
	DeleteSnippet(ctx context.Context, key, serviceID string, version int, name string) error
	CreateSnippet(ctx context.Context, key, serviceID string, version int, s compiler.Snippet) error
	ActivateVersion(ctx context.Context, key, serviceID string, version int) error
}

var _ API = (*Client)(nil)

// Publisher swaps the redirect snippets of a service: it clones the active
// version, replaces the snippets on the clone and activates it. Publishes to the
// same service are serialised through the lock manager. Nothing is rolled back
// on failure; the draft version is left for inspection.
type Publisher struct {
	api     API
	locks   locks.LockManager
	history storage.HistoryStore
	lockTTL time.Duration
	logger  logging.Logger
	now     func() time.Time
}

// NewPublisher wires a publisher. A nil history store disables history.
func NewPublisher(api API, lockManager locks.LockManager, history storage.HistoryStore, lockTTL time.Duration, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if history == nil {
		history = storage.NopHistoryStore{}
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Publisher{
		api:     api,
		locks:   lockManager,
		history: history,
		lockTTL: lockTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// Publish uploads artifacts to serviceID using key. On failure the returned
// error is a *PublishError.
func (p *Publisher) Publish(ctx context.Context, serviceID, key string, artifacts compiler.Artifacts) (*PublishResult, error) {
	logger := p.logger.WithContext(logging.ContextWith(ctx, logging.ServiceIDKey, serviceID))
	started := p.now()

	result, err := p.publish(ctx, logger, serviceID, key, artifacts)

	rec := &storage.PublishRecord{
		ServiceID: serviceID,
		Snippets:  len(artifacts.Snippets()),
		Status:    storage.StatusSuccess,
		CreatedAt: started.UTC(),
		Duration:  p.now().Sub(started),
	}
	if result != nil {
		rec.ClonedFrom = result.ClonedFrom
		rec.Version = result.Version
	}
	if err != nil {
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
		if pe, ok := err.(*PublishError); ok {
			rec.FailedStep = pe.Step
			rec.Version = pe.Version
		}
	}
	if herr := p.history.Record(ctx, rec); herr != nil {
		logger.Warn("Failed to record publish history", logging.Err(herr))
	}

	if err != nil {
		logger.Error("Publish failed", err, logging.Duration("duration", rec.Duration))
		return nil, err
	}

	logger.Info("Publish completed",
		logging.Int("cloned_from", result.ClonedFrom),
		logging.Int("version", result.Version),
		logging.Duration("duration", rec.Duration),
	)
	return result, nil
}

func (p *Publisher) publish(ctx context.Context, logger logging.Logger, serviceID, key string, artifacts compiler.Artifacts) (*PublishResult, error) {
	lock, err := p.locks.AcquireLock(ctx, locks.ServiceKey(serviceID), p.lockTTL)
	if err != nil {
		return nil, &PublishError{Step: StepLock, Err: err}
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("Failed to release publish lock", logging.Err(err))
		}
	}()

	active, err := p.api.ActiveVersion(ctx, key, serviceID)
	if err != nil {
		return nil, &PublishError{Step: StepActive, Err: err}
	}
	logger.Debug("Active version", logging.Int("version", active))

	draft, err := p.api.CloneVersion(ctx, key, serviceID, active)
	if err != nil {
		return nil, &PublishError{Step: StepClone, Version: active, Err: err}
	}
	logger.Info("Active version cloned", logging.Int("from", active), logging.Int("to", draft))

	result := &PublishResult{ServiceID: serviceID, ClonedFrom: active, Version: draft}
	snippets := artifacts.Snippets()

	for _, s := range snippets {
		if err := p.api.DeleteSnippet(ctx, key, serviceID, draft, s.Name); err != nil {
			return result, &PublishError{Step: StepDelete, Version: draft, Err: fmt.Errorf("snippet %s: %w", s.Name, err)}
		}
		logger.Debug("Snippet deleted", logging.String("snippet", s.Name))
	}

	for _, s := range snippets {
		if err := p.api.CreateSnippet(ctx, key, serviceID, draft, s); err != nil {
			return result, &PublishError{Step: StepUpload, Version: draft, Err: fmt.Errorf("snippet %s: %w", s.Name, err)}
		}
		logger.Debug("Snippet uploaded", logging.String("snippet", s.Name), logging.String("type", s.Type))
	}

	if err := p.api.ActivateVersion(ctx, key, serviceID, draft); err != nil {
		return result, &PublishError{Step: StepActivate, Version: draft, Err: err}
	}

	return result, nil
}
