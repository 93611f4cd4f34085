// Package service exposes the aggregator's operational HTTP surface:
// liveness and Prometheus metrics.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Server serves /healthz and /metrics. An empty listen address disables it.
type Server struct {
	log    log.Logger
	server *http.Server
}

// New builds the server, routes included, so Shutdown always has a server to
// stop no matter how it interleaves with Start.
func New(logger log.Logger, addr string) *Server {
	s := &Server{log: logger.New("component", "service")}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	s.server = &http.Server{
		Handler:           c.Handler(router),
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error. A closed
// server returns nil, matching the usual lifecycle expectations; that holds
// even when Shutdown won the race and ran first.
func (s *Server) Start() error {
	s.log.Info("Service listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
