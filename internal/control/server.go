package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/resilience/coordinator"
)

// Server provides HTTP endpoints for operational visibility.
type Server struct {
	coord  *coordinator.Coordinator
	server *http.Server
}

// NewServer creates a new ops server.
func NewServer(coord *coordinator.Coordinator, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		coord: coord,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/resilience/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	registry := s.coord.Registry()
	status := domain.StatusHealthy

	// Aggregate status (worst case wins)
	for _, name := range registry.Services() {
		monitor, err := registry.Monitor(name)
		if err != nil {
			continue
		}
		switch monitor.CurrentStatus() {
		case domain.StatusUnhealthy, domain.StatusError, domain.StatusTimeout:
			status = domain.StatusUnhealthy
		case domain.StatusDegraded:
			if status == domain.StatusHealthy {
				status = domain.StatusDegraded
			}
		}
		if status == domain.StatusUnhealthy {
			break
		}
	}

	response := map[string]string{"status": string(status)}
	w.Header().Set("Content-Type", "application/json")

	if status == domain.StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	reports := s.coord.GetAllServicesHealth()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.coord.GetGlobalRecoveryStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
