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

package notify

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Event outcomes recorded by the consumers.
const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeFailed    = "failed"
	outcomeEcho      = "echo"
	outcomeConflict  = "conflict"
)

var (
	publishedCounter otelmetric.Int64Counter
	consumedCounter  otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/confstore/internal/notify")

	var err error
	publishedCounter, err = meter.Int64Counter(
		"confstore.change_events.published",
		otelmetric.WithDescription("Change events published after a commit"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create change_events.published counter: %w", err))
	}

	consumedCounter, err = meter.Int64Counter(
		"confstore.events.consumed",
		otelmetric.WithDescription("Events consumed from Kafka by topic kind and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create events.consumed counter: %w", err))
	}
}

func recordConsumed(ctx context.Context, kind, outcome string) {
	consumedCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
