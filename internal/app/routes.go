package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"edge-redirector/internal/handlers"
	"edge-redirector/internal/middleware"
	"edge-redirector/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, limiter *ratelimit.KeyedLimiter) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	er := router.PathPrefix("/cloudlet/er").Subrouter()
	if limiter != nil {
		er.Use(ratelimit.HTTPMiddleware(limiter, ratelimit.IPKey))
	}
	er.HandleFunc("/compile", h.Compile).Methods("POST")
	er.HandleFunc("/resolve", h.Resolve).Methods("POST")
	er.HandleFunc("/service/{serviceId}", h.Publish).Methods("POST")
	er.HandleFunc("/service/{serviceId}/history", h.History).Methods("GET")

	// mux skips middleware for its own 404 and 405 handlers
	notFound := middleware.RequestID(middleware.LoggingMiddleware(http.HandlerFunc(h.NotFound)))
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = notFound
}
