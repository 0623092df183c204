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

	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/confstore/internal/fly"
)

// DefaultDedupTTL is how long an applied event id is remembered.
const DefaultDedupTTL = 10 * time.Minute

// recentEvents remembers event ids that were already handled, so a
// redelivered event is skipped.
type recentEvents struct {
	cache *ttlcache.Cache[string, struct{}]
}

func newRecentEvents(ttl time.Duration) *recentEvents {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &recentEvents{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

func (r *recentEvents) seen(id string) bool {
	return r.cache.Has(id)
}

func (r *recentEvents) remember(id string) {
	r.cache.Set(id, struct{}{}, ttlcache.DefaultTTL)
}

// consumeLoop runs consumer with handle until ctx is done. The expiry
// goroutine of the dedup cache lives as long as the loop.
func consumeLoop(ctx context.Context, consumer fly.Consumer, recent *recentEvents, ll *slog.Logger, handle func(context.Context, fly.ConsumedMessage)) error {
	go recent.cache.Start()
	defer recent.cache.Stop()

	ll.Info("Consumer started")
	err := consumer.Consume(ctx, func(ctx context.Context, msgs []fly.ConsumedMessage) error {
		for _, m := range msgs {
			handle(ctx, m)
		}
		return nil
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		ll.Info("Consumer stopped")
		return nil
	}
	return err
}
