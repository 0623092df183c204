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


// Package debugging exposes runtime profiling for a running node.
package debugging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"
)

const DefaultPprofPort = 6060

type Config struct {
	// PprofPort serves net/http/pprof. Zero disables it.
	PprofPort int `mapstructure:"pprof_port"`
}

func pprofHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// RunPprof serves the profiling endpoints until ctx is done. A listener
// failure is logged and not returned, since profiling is never required for
// a node to work.
func RunPprof(ctx context.Context, cfg Config) error {
	if cfg.PprofPort <= 0 {
		return nil
	}

	addr := fmt.Sprintf(":%d", cfg.PprofPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Warn("Pprof server not started", slog.String("address", addr), slog.Any("error", err))
		return nil
	}
	server := &http.Server{
		Handler:           pprofHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Starting pprof server", slog.String("address", addr))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Pprof server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down pprof server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down pprof server", slog.Any("error", err))
	}
	return nil
}
