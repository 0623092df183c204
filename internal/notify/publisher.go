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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/confstore/internal/confcache"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/idgen"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

// Message headers set on every event this package produces.
const (
	HeaderSource   = "source"
	HeaderInstance = "instance"
)

// Publisher sends events to Kafka. The message key is the tenant, so events
// for one tenant stay on one partition in publish order.
type Publisher struct {
	producer      fly.Producer
	changeTopic   string
	mutateTopic   string
	instanceID    string
	sourceDefault model.RequestSource
}

// NewPublisher returns a publisher writing change events to changeTopic and
// mutation events to mutateTopic.
func NewPublisher(producer fly.Producer, changeTopic, mutateTopic, instanceID string) *Publisher {
	return &Publisher{
		producer:      producer,
		changeTopic:   changeTopic,
		mutateTopic:   mutateTopic,
		instanceID:    instanceID,
		sourceDefault: model.SourceWebService,
	}
}

// PublishChange sends ev to the change topic. An event with no paths
// describes no change and is not sent.
func (p *Publisher) PublishChange(ctx context.Context, tenant string, ev model.ChangeEvent) error {
	if len(ev.Paths) == 0 {
		return nil
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	if err := p.send(ctx, p.changeTopic, tenant, value); err != nil {
		return fmt.Errorf("publishing change event %s: %w", ev.EventID, err)
	}
	publishedCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("topic", p.changeTopic)))
	slog.DebugContext(ctx, "Published change event",
		slog.String("eventId", ev.EventID),
		slog.String("commit", ev.Commit),
		slog.Int("paths", len(ev.Paths)))
	return nil
}

// PublishMutation asks the cluster to apply a change on behalf of
// sourceService. Missing ids and timestamps are filled in.
func (p *Publisher) PublishMutation(ctx context.Context, ev model.MutationEvent) (model.MutationEvent, error) {
	if ev.EventID == "" {
		ev.EventID = idgen.NewEventID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("encoding mutation event: %w", err)
	}
	if err := p.send(ctx, p.mutateTopic, ev.Tenant, value); err != nil {
		return ev, fmt.Errorf("publishing mutation event %s: %w", ev.EventID, err)
	}
	return ev, nil
}

func (p *Publisher) send(ctx context.Context, topic, tenant string, value []byte) error {
	source, ok := tenantctx.SourceFromContext(ctx)
	if !ok {
		source = p.sourceDefault
	}
	return p.producer.Send(ctx, topic, fly.Message{
		Key:   []byte(confcache.NormalizeTenant(tenant)),
		Value: value,
		Headers: map[string]string{
			HeaderSource:   source.String(),
			HeaderInstance: p.instanceID,
		},
	})
}
