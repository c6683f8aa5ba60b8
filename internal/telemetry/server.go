package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the websocket state feed on /ws and Prometheus
// exposition on /metrics.
type Server struct {
	hub  *Hub
	http *http.Server
}

func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		hub: hub,
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the hub fan-out and the HTTP listener in the background.
func (s *Server) Start() {
	go s.hub.Run()
	go func() {
		slog.Info("Telemetry server listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Telemetry server error", slog.Any("error", err))
		}
	}()
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
