// Package app wires configuration, stores, locks and the HTTP API together.
package app

import (
	"context"
	"fmt"

	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/config"
	"edge-redirector/internal/fastly"
	"edge-redirector/internal/locks"
	"edge-redirector/internal/ratelimit"
	"edge-redirector/internal/redis"
	"edge-redirector/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	History     storage.HistoryStore
	RedisClient *redis.Client
	Locks       locks.LockManager
	Fastly      *fastly.Client
	Publisher   *fastly.Publisher
	Limiter     *ratelimit.KeyedLimiter
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeStorage(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeLocks(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializePublisher()

	if err := app.initializeRateLimit(); err != nil {
		app.Cleanup()
		return nil, err
	}

	return app, nil
}

// NewPublishing builds the subset of the application a one-off publish needs: the
// Redis connection and distributed locks when REDIS_ADDRESS is set, and the
// publisher. Publishes made this way are not recorded in the history.
func NewPublishing(cfg *config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		History: storage.NopHistoryStore{},
		Logger:  logging.GetGlobalLogger().WithFields(logging.String("component", "publish")),
	}

	if err := app.initializeRedis(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeLocks(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializePublisher()
	return app, nil
}

func (app *App) initializeRateLimit() error {
	if app.Config.APIRateLimit <= 0 {
		return nil
	}

	limiter, err := ratelimit.NewKeyedLimiter(ratelimit.Config{
		RequestsPerSecond: app.Config.APIRateLimit,
		BurstSize:         app.Config.APIRateBurst,
	})
	if err != nil {
		return err
	}
	app.Limiter = limiter
	app.Logger.Info("API rate limiting: Enabled",
		logging.String("per_client_rps", fmt.Sprintf("%g", app.Config.APIRateLimit)),
		logging.Int("burst", app.Config.APIRateBurst),
	)
	return nil
}

func (app *App) initializePublisher() {
	app.Fastly = fastly.NewClient(fastly.ClientConfig{
		BaseURL:   app.Config.FastlyAPIURL,
		Timeout:   app.Config.FastlyAPITimeout,
		RateLimit: app.Config.FastlyAPIRate,
		Burst:     app.Config.FastlyAPIBurst,
	})
	app.Publisher = fastly.NewPublisher(app.Fastly, app.Locks, app.History, app.Config.PublishLockTTL, app.Logger)

	app.Logger.Info("Fastly publisher ready",
		logging.String("api", app.Config.FastlyAPIURL),
		logging.Duration("lock_ttl", app.Config.PublishLockTTL),
	)
}

// Shutdown releases held locks before the listener is closed.
func (app *App) Shutdown(ctx context.Context) error {
	if app.Locks == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- app.Locks.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Locks != nil {
		_ = app.Locks.Close()
	}
	if app.History != nil {
		if err := app.History.Close(); err != nil {
			app.Logger.Warn("Failed to close history store", logging.Err(err))
		}
	}
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
}
