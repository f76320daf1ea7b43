package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"edge-redirector/internal/handlers"
	"edge-redirector/internal/server"
)

// Handler builds the routed HTTP handler.
func (app *App) Handler() http.Handler {
	h := handlers.New(app.Publisher, app.History, app.Config)
	h.AddHealthCheck("fastly", app.Fastly)
	if app.RedisClient != nil {
		h.AddHealthCheck("redis", app.RedisClient)
	}

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Limiter)
	return router
}

// RunServer builds the HTTP server with all handlers configured
func (app *App) RunServer() *server.Server {
	return server.New(app.Handler(), app.Config.Port, app.Config.TLSCertFile, app.Config.TLSKeyFile)
}
