package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router, a *app) {
	router.HandleFunc("/spotify/now-playing", a.nowPlaying).Methods(http.MethodGet)

	// Cache management endpoints
	router.HandleFunc("/cache", a.getCacheStatus).Methods(http.MethodGet)
	router.HandleFunc("/cache/clear", a.clearCache).Methods(http.MethodPost)

	// Health and stats endpoints
	router.HandleFunc("/health", a.health).Methods(http.MethodGet)
	router.HandleFunc("/stats", a.getStats).Methods(http.MethodGet)

	// Circuit breaker endpoints
	router.HandleFunc("/circuit-breaker", a.getCircuitBreakerStatus).Methods(http.MethodGet)
	router.HandleFunc("/circuit-breaker/reset", a.resetCircuitBreaker).Methods(http.MethodPost)

	router.HandleFunc("/test-notifications", a.testNotifications).Methods(http.MethodPost)

	// Help endpoint
	router.HandleFunc("/", helpHandler)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	router.NotFoundHandler = http.HandlerFunc(notFound)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).Error(http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).Error(http.StatusNotFound, map[string]string{"error": "Not found"})
}
