package app

import (
	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/storage"

	// history backends register themselves
	_ "edge-redirector/internal/storage/postgres"
	_ "edge-redirector/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	store, err := storage.NewHistoryStore(app.Config)
	if err != nil {
		return err
	}
	app.History = store

	if _, disabled := store.(storage.NopHistoryStore); disabled {
		app.Logger.Info("Publish history: Disabled")
		return nil
	}
	app.Logger.Info("Publish history: Enabled", logging.String("type", app.Config.DatabaseType))
	return nil
}
