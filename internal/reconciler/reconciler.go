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

// Package reconciler periodically catches a node's cache up with the store,
// repairing whatever dropped or undelivered change events left behind.
package reconciler

import (
	"context"
	"log/slog"
	"time"
)

// ReconcileFunc brings local state up to date with its durable source.
type ReconcileFunc func(ctx context.Context) error

// Reconciler calls a ReconcileFunc on a fixed interval.
type Reconciler struct {
	reconcile ReconcileFunc
	interval  time.Duration
	ll        *slog.Logger

	// tick is called after every pass; tests hook it.
	tick func(err error)
}

// New returns a reconciler. A non-positive interval disables it.
func New(fn ReconcileFunc, interval time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		reconcile: fn,
		interval:  interval,
		ll:        logger.With(slog.String("component", "reconciler")),
	}
}

// Run reconciles every interval until ctx is done. The first pass happens
// one interval after start, since a node loads the full store before it
// serves. Failed passes are logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.ll.Info("Periodic reconciliation disabled")
		<-ctx.Done()
		return nil
	}
	r.ll.Info("Starting reconciliation loop", slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.ll.Debug("Context cancelled, stopping reconciliation loop")
			return nil
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	start := time.Now()
	err := r.reconcile(ctx)
	recordPass(ctx, time.Since(start), err)
	if r.tick != nil {
		defer r.tick(err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.ll.Error("Reconciliation failed (continuing)", slog.Any("error", err))
		return
	}
	r.ll.Debug("Reconciliation pass complete", slog.Duration("elapsed", time.Since(start)))
}
