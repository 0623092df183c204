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

package configservice

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/confstore/internal/configservice")

	writeCounter    otelmetric.Int64Counter
	refreshCounter  otelmetric.Int64Counter
	changedPaths    otelmetric.Int64Counter
	publishFailures otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/confstore/internal/configservice")

	var err error
	writeCounter, err = meter.Int64Counter(
		"confstore.config.writes",
		otelmetric.WithDescription("Configuration write attempts by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create config.writes counter: %w", err))
	}

	refreshCounter, err = meter.Int64Counter(
		"confstore.cache.refreshes",
		otelmetric.WithDescription("Cache refresh cycles by kind"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache.refreshes counter: %w", err))
	}

	changedPaths, err = meter.Int64Counter(
		"confstore.cache.changed_paths",
		otelmetric.WithDescription("Cache entries changed by refresh cycles"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache.changed_paths counter: %w", err))
	}

	publishFailures, err = meter.Int64Counter(
		"confstore.change_events.publish_failures",
		otelmetric.WithDescription("Change events that could not be published after a commit"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create change_events.publish_failures counter: %w", err))
	}
}

func recordWrite(ctx context.Context, source, outcome string) {
	writeCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func recordRefresh(ctx context.Context, kind string, changed int) {
	attrs := otelmetric.WithAttributes(attribute.String("kind", kind))
	refreshCounter.Add(ctx, 1, attrs)
	if changed > 0 {
		changedPaths.Add(ctx, int64(changed), attrs)
	}
}
