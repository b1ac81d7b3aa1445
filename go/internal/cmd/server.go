package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/mcdev12/chronicle/go/internal/auth"
	"github.com/mcdev12/chronicle/go/internal/timer"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const serviceVersion = "1.0.0"

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedHeaders:   []string{"*"},
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins(), "*"),
	})

	// Register services
	registerServices(mux, services)

	// Add health check and info endpoints
	setupHealthCheck(mux)
	setupInfo(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register timer service behind the identity middleware
	timerServicePath, timerServiceHandler := timer.NewTimerServiceHandler(services.Timers)
	mux.Handle(timerServicePath, auth.RequireUser(timerServiceHandler))

	// Register timer gateway WebSocket routes
	services.Gateway.RegisterRoutes(mux)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

type infoResponse struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
	Timers      int    `json:"timers"`
}

func setupInfo(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := services.Gateway.GetStats()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(infoResponse{
			Service:     "chronicle-timer",
			Version:     serviceVersion,
			Connections: stats.TotalConnections,
			Timers:      stats.ActiveTimers,
		}); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}

// originChecker decides which browser origins may open a WebSocket
func originChecker(origins []string) func(r *http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
