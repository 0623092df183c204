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
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/confstore/internal/confcache"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

const kindChange = "change"

// Refresher brings the local cache up to date with the store.
type Refresher interface {
	RefreshFromStore(ctx context.Context, commit string, paths []string) (mapset.Set[confcache.Key], error)
}

// ChangeConsumer applies change events from every node, this one included.
type ChangeConsumer struct {
	consumer   fly.Consumer
	refresher  Refresher
	instanceID string
	recent     *recentEvents
	ll         *slog.Logger
}

// NewChangeConsumer returns a consumer that refreshes r for every change
// event read from consumer.
func NewChangeConsumer(consumer fly.Consumer, r Refresher, instanceID string, dedupTTL time.Duration) *ChangeConsumer {
	return &ChangeConsumer{
		consumer:   consumer,
		refresher:  r,
		instanceID: instanceID,
		recent:     newRecentEvents(dedupTTL),
		ll:         slog.Default().With(slog.String("component", "change-consumer")),
	}
}

// Run consumes until ctx is done.
func (c *ChangeConsumer) Run(ctx context.Context) error {
	return consumeLoop(ctx, c.consumer, c.recent, c.ll, c.handle)
}

func (c *ChangeConsumer) handle(ctx context.Context, m fly.ConsumedMessage) {
	ev, err := model.DecodeChangeEvent(m.Value)
	if err != nil {
		recordConsumed(ctx, kindChange, outcomeDropped)
		c.ll.WarnContext(ctx, "Dropping malformed change event",
			slog.String("topic", m.Topic),
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Any("error", err))
		return
	}
	if c.recent.seen(ev.EventID) {
		recordConsumed(ctx, kindChange, outcomeDuplicate)
		c.ll.DebugContext(ctx, "Skipping change event already applied", slog.String("eventId", ev.EventID))
		return
	}

	ctx = tenantctx.WithTenant(ctx, string(m.Key))
	if src, err := model.ParseRequestSource(m.Header(HeaderSource)); err == nil {
		ctx = tenantctx.WithSource(ctx, src)
	}

	changed, err := c.refresher.RefreshFromStore(ctx, ev.Commit, ev.Paths)
	if err != nil {
		recordConsumed(ctx, kindChange, outcomeFailed)
		c.ll.ErrorContext(ctx, "Refresh for change event failed",
			slog.String("eventId", ev.EventID),
			slog.String("commit", ev.Commit),
			slog.Any("error", err))
		return
	}
	c.recent.remember(ev.EventID)
	recordConsumed(ctx, kindChange, outcomeApplied)
	c.ll.DebugContext(ctx, "Applied change event",
		slog.String("eventId", ev.EventID),
		slog.String("commit", ev.Commit),
		slog.Bool("own", m.Header(HeaderInstance) == c.instanceID),
		slog.Int("changed", changed.Cardinality()))
}
