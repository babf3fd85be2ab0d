package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/lbalbarani-maker/hockey-score/internal/gateway"
)

// newServer wires the match API, health endpoints and CORS onto an HTTP
// server.
func newServer(cfg *Config, service *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	handler := gateway.NewMatchHandler(service)
	handler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"scoreboard-gateway","version":"1.0.0"}`)
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Admin-Pin"},
		MaxAge:         86400,
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      corsMiddleware.Handler(mux),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
}
