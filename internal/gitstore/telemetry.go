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

package gitstore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/confstore/internal/gitstore")

	opDuration   otelmetric.Float64Histogram
	lockWaitTime otelmetric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/confstore/internal/gitstore")

	var err error
	opDuration, err = meter.Float64Histogram(
		"confstore.gitstore.operation.duration",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of versioned store operations"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create operation.duration histogram: %w", err))
	}

	lockWaitTime, err = meter.Float64Histogram(
		"confstore.gitstore.lock.wait",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Time spent waiting for the store mutation lock"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lock.wait histogram: %w", err))
	}
}

func recordOp(ctx context.Context, op string, d time.Duration, err error) {
	opDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", err == nil),
	))
}

func recordLockWait(ctx context.Context, d time.Duration, acquired bool) {
	lockWaitTime.Record(ctx, d.Seconds(), otelmetric.WithAttributes(
		attribute.Bool("acquired", acquired),
	))
}
