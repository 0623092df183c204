// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package healthcheck serves liveness and readiness probes for a node.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Response is the body of every health endpoint.
type Response struct {
	Healthy    bool            `json:"healthy"`
	Status     string          `json:"status"`
	Version    string          `json:"version,omitempty"`
	Conditions map[string]bool `json:"conditions,omitempty"`
}

type Config struct {
	Port int `mapstructure:"port"`
}

// Server answers /healthz, /livez and /readyz. A node is ready once every
// named condition has been set true.
type Server struct {
	port       int
	status     atomic.Int32
	conditions sync.Map // map[string]bool
	version    func() string
	server     *http.Server
}

// NewServer returns a server for config. version, if set, is reported in
// every response.
func NewServer(config Config, version func() string) *Server {
	if config.Port == 0 {
		config.Port = 8090
	}
	s := &Server{
		port:    config.Port,
		version: version,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// SetReadyCondition sets a named readiness condition.
func (s *Server) SetReadyCondition(name string, ready bool) {
	s.conditions.Store(name, ready)
	slog.Debug("Ready condition updated", slog.String("condition", name), slog.Bool("ready", ready))
}

// IsReady reports whether the node is healthy and every condition holds.
// A node with no conditions registered is not ready.
func (s *Server) IsReady() bool {
	if s.GetStatus() != StatusHealthy {
		return false
	}
	seen, ready := false, true
	s.conditions.Range(func(_, value any) bool {
		seen = true
		if !value.(bool) {
			ready = false
			return false
		}
		return true
	})
	return seen && ready
}

func (s *Server) conditionSnapshot() map[string]bool {
	out := map[string]bool{}
	s.conditions.Range(func(k, v any) bool {
		out[k.(string)] = v.(bool)
		return true
	})
	return out
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.respond(w, s.GetStatus() == StatusHealthy, false)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		s.respond(w, s.GetStatus() != StatusUnhealthy, false)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		s.respond(w, s.IsReady(), true)
	})
	return mux
}

// Start serves until ctx is done. Stop may be called from any goroutine.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health check listener: %w", err)
	}
	slog.Info("Starting health check server", slog.Int("port", s.port))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health check server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) respond(w http.ResponseWriter, ok bool, withConditions bool) {
	response := Response{Healthy: ok, Status: s.GetStatus().String()}
	if s.version != nil {
		response.Version = s.version()
	}
	if withConditions {
		response.Conditions = s.conditionSnapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
