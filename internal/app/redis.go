package app

import (
	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/locks"
	"edge-redirector/internal/redis"
)

func (app *App) initializeRedis() error {
	if !app.Config.UsesRedis() {
		app.Logger.Info("Redis: Not configured (publish locks are local to this process)")
		return nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	})
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.String("address", redisClient.Address()))
	return nil
}

func (app *App) initializeLocks() error {
	if app.RedisClient == nil {
		app.Locks = locks.NewLocalManager()
		return nil
	}

	manager, err := locks.NewRedsyncManager(app.RedisClient, app.Logger)
	if err != nil {
		return err
	}
	app.Locks = manager
	app.Logger.Info("Distributed Locks: Enabled")
	return nil
}
