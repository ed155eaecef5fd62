// Package health serves liveness and metrics endpoints for the batcher.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the aggregate health of the service.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// CheckFunc reports a dependency failure as a non-nil error.
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	critical bool
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
	server  *http.Server
}

// NewServer creates a new health server.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checks:  make(map[string]check),
		timeout: 3 * time.Second,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// AddCheck registers a dependency. A failing critical check turns the
// service critical, any other failing check only degrades it.
func (s *Server) AddCheck(name string, critical bool, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check{fn: fn, critical: critical}
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// CheckHealth runs every registered check and returns the aggregate status
// with per-check results sorted by name.
func (s *Server) CheckHealth(ctx context.Context) (Status, []CheckResult) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	status := StatusHealthy
	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		c := checks[name]
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		start := time.Now()
		err := c.fn(cctx)
		cancel()

		res := CheckResult{Name: name, Status: StatusHealthy, Latency: time.Since(start).String()}
		if err != nil {
			res.Error = err.Error()
			res.Status = StatusDegraded
			if c.critical {
				res.Status = StatusCritical
			}
		}
		// Worst case wins
		if res.Status == StatusCritical {
			status = StatusCritical
		} else if res.Status == StatusDegraded && status == StatusHealthy {
			status = StatusDegraded
		}
		results = append(results, res)
	}
	return status, results
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, _ := s.CheckHealth(r.Context())

	response := map[string]string{"status": string(status)}
	w.Header().Set("Content-Type", "application/json")

	if status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	status, results := s.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": results,
	})
}
