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
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/idgen"
	"github.com/cardinalhq/confstore/internal/logctx"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

// mutation is one write or delete in tenant-relative terms.
type mutation struct {
	path    string
	content *string
	oldHash string
}

// UpdateConfiguration writes msg.Content at msg.Path for tenant if the
// current content still hashes to msg.OldConfigHash. model.AbsentHash
// expects the path not to exist yet.
func (s *Service) UpdateConfiguration(ctx context.Context, tenant string, msg model.ConfigurationUpdateMessage) (model.ConfigVersion, error) {
	return s.UpdateConfigurations(ctx, tenant, []model.ConfigurationUpdateMessage{msg})
}

// UpdateConfigurations writes all messages as one commit. Every hash must
// match or nothing is written.
func (s *Service) UpdateConfigurations(ctx context.Context, tenant string, msgs []model.ConfigurationUpdateMessage) (model.ConfigVersion, error) {
	if len(msgs) == 0 {
		return model.UndefinedVersion(), fmt.Errorf("%w: no configurations", ErrInvalidArgument)
	}
	muts := make([]mutation, len(msgs))
	for i, m := range msgs {
		content := m.Content
		muts[i] = mutation{path: m.Path, content: &content, oldHash: m.OldConfigHash}
	}
	return s.commit(ctx, tenant, muts)
}

// DeleteConfiguration removes path for tenant if its current content hashes
// to oldHash.
func (s *Service) DeleteConfiguration(ctx context.Context, tenant, p, oldHash string) (model.ConfigVersion, error) {
	return s.commit(ctx, tenant, []mutation{{path: p, oldHash: oldHash}})
}

func (s *Service) commit(ctx context.Context, tenant string, muts []mutation) (ver model.ConfigVersion, err error) {
	source, ok := tenantctx.SourceFromContext(ctx)
	if !ok {
		source = model.SourceWebService
	}

	tenant, err = cleanTenant(tenantctx.TenantOr(ctx, tenant))
	if err != nil {
		return model.UndefinedVersion(), err
	}
	for i := range muts {
		if muts[i].path, err = cleanPath(muts[i].path); err != nil {
			return model.UndefinedVersion(), err
		}
		if err = checkOwned(tenant, muts[i].path); err != nil {
			return model.UndefinedVersion(), err
		}
	}

	ctx, span := tracer.Start(ctx, "configservice.commit", trace.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("source", source.String()),
		attribute.Int("paths", len(muts)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	ll := logctx.FromContext(ctx).With(slog.String("tenant", tenant), slog.String("source", source.String()))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// RECEIVED -> HASH_CHECKED against this node's cache.
	snap := s.Snapshot()
	for _, m := range muts {
		current := model.AbsentHash
		if c, ok := snap.Get(tenant, m.path); ok {
			current = c.Hash()
		}
		if current != m.oldHash {
			recordWrite(ctx, source.String(), "rejected")
			ll.Info("Rejected stale configuration write", slog.String("path", m.path))
			return model.UndefinedVersion(), fmt.Errorf("%w: %s %s", ErrConcurrentConfigModification, tenant, m.path)
		}
	}

	changes := make([]gitstore.Change, len(muts))
	for i, m := range muts {
		c := gitstore.DeleteChange(StorePath(tenant, m.path))
		if m.content != nil {
			c = gitstore.WriteChange(StorePath(tenant, m.path), *m.content)
		}
		changes[i] = c.Expecting(m.oldHash)
	}

	res, err := s.store.Apply(ctx, changes)
	if errors.Is(err, gitstore.ErrWriteConflict) {
		recordWrite(ctx, source.String(), "conflict")
		ll.Info("Store rejected configuration write", slog.Any("error", err))
		return model.UndefinedVersion(), fmt.Errorf("%w: %v", ErrConcurrentConfigModification, err)
	}
	if err != nil {
		recordWrite(ctx, source.String(), "error")
		return model.UndefinedVersion(), fmt.Errorf("committing %s: %w", tenant, err)
	}

	// COMMITTED. The cache learns about the commit the same way it learns
	// about a peer's: by refreshing from the store.
	if _, err := s.refreshDelta(ctx, res.Commit, res.Paths); err != nil {
		ll.Warn("Refresh after commit failed, the consumed change event will retry it",
			slog.String("commit", res.Commit), slog.Any("error", err))
	}

	if len(res.Paths) == 0 {
		recordWrite(ctx, source.String(), "noop")
		return s.cache.Version().WithMainVersion(res.Commit), nil
	}
	recordWrite(ctx, source.String(), "committed")
	span.SetAttributes(attribute.String("commit", res.Commit))

	s.publish(ctx, tenant, res)
	return s.cache.Version().WithMainVersion(res.Commit), nil
}

func (s *Service) publish(ctx context.Context, tenant string, res gitstore.Result) {
	if s.publisher == nil {
		return
	}
	ev := model.ChangeEvent{
		EventID: idgen.NewEventID(),
		Commit:  res.Commit,
		Paths:   res.Paths,
	}
	if err := s.publisher.PublishChange(ctx, tenant, ev); err != nil {
		publishFailures.Add(ctx, 1)
		// Peers converge on their next reconcile.
		s.ll.ErrorContext(ctx, "Failed to publish change event",
			slog.String("eventId", ev.EventID),
			slog.String("commit", ev.Commit),
			slog.Any("error", err))
	}
}
