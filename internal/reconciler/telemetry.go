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

package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var passDuration otelmetric.Float64Histogram

func init() {
	meter := otel.Meter("github.com/cardinalhq/confstore/internal/reconciler")

	var err error
	passDuration, err = meter.Float64Histogram(
		"confstore.reconcile.duration",
		otelmetric.WithDescription("Duration of reconciliation passes"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create reconcile.duration histogram: %w", err))
	}
}

func recordPass(ctx context.Context, d time.Duration, err error) {
	passDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(
		attribute.Bool("success", err == nil),
	))
}
