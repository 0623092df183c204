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
	"errors"
	"log/slog"
	"time"

	"github.com/cardinalhq/confstore/internal/configservice"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

const kindMutation = "mutation"

// Mutator applies configuration changes.
type Mutator interface {
	UpdateConfiguration(ctx context.Context, tenant string, msg model.ConfigurationUpdateMessage) (model.ConfigVersion, error)
	DeleteConfiguration(ctx context.Context, tenant, p, oldHash string) (model.ConfigVersion, error)
}

// MutationConsumer applies change requests sent by other services. The
// mutation topic is read by one shared consumer group, so each request is
// handled by a single node.
type MutationConsumer struct {
	consumer    fly.Consumer
	mutator     Mutator
	serviceName string
	recent      *recentEvents
	ll          *slog.Logger
}

// NewMutationConsumer returns a consumer applying requests through m.
// Requests whose sourceService is serviceName originate from this cluster
// and are skipped.
func NewMutationConsumer(consumer fly.Consumer, m Mutator, serviceName string, dedupTTL time.Duration) *MutationConsumer {
	return &MutationConsumer{
		consumer:    consumer,
		mutator:     m,
		serviceName: serviceName,
		recent:      newRecentEvents(dedupTTL),
		ll:          slog.Default().With(slog.String("component", "mutation-consumer")),
	}
}

// Run consumes until ctx is done.
func (c *MutationConsumer) Run(ctx context.Context) error {
	return consumeLoop(ctx, c.consumer, c.recent, c.ll, c.handle)
}

func (c *MutationConsumer) handle(ctx context.Context, m fly.ConsumedMessage) {
	ev, err := model.DecodeMutationEvent(m.Value)
	if err != nil {
		recordConsumed(ctx, kindMutation, outcomeDropped)
		c.ll.WarnContext(ctx, "Dropping malformed mutation event",
			slog.String("topic", m.Topic),
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Any("error", err))
		return
	}
	if c.serviceName != "" && ev.SourceService == c.serviceName {
		recordConsumed(ctx, kindMutation, outcomeEcho)
		c.ll.DebugContext(ctx, "Skipping self-originated mutation event", slog.String("eventId", ev.EventID))
		return
	}
	if c.recent.seen(ev.EventID) {
		recordConsumed(ctx, kindMutation, outcomeDuplicate)
		return
	}

	ctx = tenantctx.WithSource(tenantctx.WithTenant(ctx, ev.Tenant), model.SourceConfigQueue)
	ll := c.ll.With(
		slog.String("eventId", ev.EventID),
		slog.String("sourceService", ev.SourceService),
		slog.String("tenant", ev.Tenant),
		slog.String("path", ev.Data.Path))

	var ver model.ConfigVersion
	switch ev.EventType {
	case model.EventUpdateConfig:
		ver, err = c.mutator.UpdateConfiguration(ctx, ev.Tenant, *ev.Data)
	case model.EventDeleteConfig:
		ver, err = c.mutator.DeleteConfiguration(ctx, ev.Tenant, ev.Data.Path, ev.Data.OldConfigHash)
	}

	switch {
	case err == nil:
		c.recent.remember(ev.EventID)
		recordConsumed(ctx, kindMutation, outcomeApplied)
		ll.InfoContext(ctx, "Applied mutation event",
			slog.String("eventType", string(ev.EventType)),
			slog.String("version", ver.MainVersion()))
	case errors.Is(err, configservice.ErrConcurrentConfigModification):
		// The sender raced another writer and has to resubmit with a
		// fresh hash.
		c.recent.remember(ev.EventID)
		recordConsumed(ctx, kindMutation, outcomeConflict)
		ll.InfoContext(ctx, "Mutation event rejected as stale", slog.Any("error", err))
	case errors.Is(err, configservice.ErrInvalidArgument):
		recordConsumed(ctx, kindMutation, outcomeDropped)
		ll.WarnContext(ctx, "Dropping invalid mutation event", slog.Any("error", err))
	default:
		recordConsumed(ctx, kindMutation, outcomeFailed)
		ll.ErrorContext(ctx, "Mutation event failed", slog.Any("error", err))
	}
}
