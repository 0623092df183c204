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
	"log/slog"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/confstore/internal/aliastree"
	"github.com/cardinalhq/confstore/internal/confcache"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/model"
)

// Load reads the whole store and every external source into the cache.
// It is called once before the node starts serving.
func (s *Service) Load(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if _, err := s.refreshFull(ctx); err != nil {
		return err
	}
	return s.refreshExternals(ctx)
}

// RefreshFromStore brings the cache up to the store's HEAD. paths are the
// store paths named by a change event; a nil slice means the set is unknown
// and forces a full reload. Otherwise only what changed between the cached
// version and HEAD is re-read, so applying the same event twice is the same
// as applying it once.
func (s *Service) RefreshFromStore(ctx context.Context, commit string, paths []string) (mapset.Set[confcache.Key], error) {
	if paths == nil {
		s.refreshMu.Lock()
		defer s.refreshMu.Unlock()
		return s.refreshFull(ctx)
	}
	return s.refreshDelta(ctx, commit, paths)
}

// Reconcile catches the cache up with the store and every external source,
// repairing anything a dropped change event left behind.
func (s *Service) Reconcile(ctx context.Context) error {
	var merr *multierror.Error
	if _, err := s.refreshDelta(ctx, "", []string{}); err != nil {
		merr = multierror.Append(merr, err)
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if err := s.refreshExternals(ctx); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

func (s *Service) refreshFull(ctx context.Context) (mapset.Set[confcache.Key], error) {
	ver, files, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	changed := s.cache.Apply(confcache.Update{
		Version: s.cache.Version().WithMainVersion(ver.MainVersion()),
		Full:    true,
		Puts:    entries(files),
	})
	s.afterRefresh(ctx, "full", changed)
	return changed, nil
}

func (s *Service) refreshDelta(ctx context.Context, commit string, paths []string) (mapset.Set[confcache.Key], error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	current := s.cache.Version()
	d, err := s.store.ReadSince(ctx, current.MainVersion())
	if err != nil {
		return nil, fmt.Errorf("reading store since %s: %w", current.MainVersion(), err)
	}
	if d.Empty() && d.Version.MainVersion() == current.MainVersion() {
		s.ll.Debug("Cache already at store HEAD",
			slog.String("commit", commit),
			slog.String("head", current.MainVersion()),
			slog.Int("paths", len(paths)))
		return mapset.NewThreadUnsafeSet[confcache.Key](), nil
	}

	upd := confcache.Update{
		Version: current.WithMainVersion(d.Version.MainVersion()),
		Full:    d.Full,
		Puts:    entries(d.Files),
	}
	for _, removed := range d.Removed {
		tenant, p := Locate(removed)
		upd.Deletes = append(upd.Deletes, confcache.Key{Tenant: tenant, Path: p})
	}
	changed := s.cache.Apply(upd)

	kind := "delta"
	if d.Full {
		kind = "full"
	}
	s.afterRefresh(ctx, kind, changed)
	return changed, nil
}

func (s *Service) refreshExternals(ctx context.Context) error {
	if len(s.externals) == 0 {
		return nil
	}
	var merr *multierror.Error
	ver := s.cache.Version()
	upd := confcache.Update{External: map[string][]model.Configuration{}}
	for _, ext := range s.externals {
		ev, files, err := ext.Store.ReadAll(ctx)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("external source %s: %w", ext.Name, err))
			continue
		}
		if old, ok := ver.ExternalTenantVersion(ext.Name); ok && old.Equal(ev) {
			continue
		}
		if files == nil {
			files = []model.Configuration{}
		}
		upd.External[ext.Name] = files
		ver = ver.WithExternalTenantVersion(ext.Name, ev)
	}
	if len(upd.External) > 0 {
		upd.Version = ver
		s.afterRefresh(ctx, "external", s.cache.Apply(upd))
	}
	return merr.ErrorOrNil()
}

// afterRefresh runs with refreshMu held, right after a cache update. It
// publishes the new snapshot together with the alias tree that matches it.
func (s *Service) afterRefresh(ctx context.Context, kind string, changed mapset.Set[confcache.Key]) {
	snap := s.cache.Snapshot()
	tree := s.view.Load().tree
	if changed.Contains(s.aliasKey) {
		tree = s.buildAliasTree(ctx, snap, tree)
	}
	s.view.Store(&view{snap: snap, tree: tree})

	recordRefresh(ctx, kind, changed.Cardinality())
	if changed.Cardinality() == 0 {
		return
	}

	keys := changed.ToSlice()
	slices.SortFunc(keys, func(a, b confcache.Key) int { return strings.Compare(a.String(), b.String()) })
	version := snap.Version()
	s.ll.InfoContext(ctx, "Configuration cache refreshed",
		slog.String("kind", kind),
		slog.String("version", version.String()),
		slog.Int("changed", len(keys)))

	for _, l := range s.listeners {
		l.ConfigurationsChanged(ctx, version, keys)
	}
}

// buildAliasTree builds the tree from the document in snap. A document that
// fails to build leaves prev in place.
func (s *Service) buildAliasTree(ctx context.Context, snap *confcache.Snapshot, prev *aliastree.Tree) *aliastree.Tree {
	doc, ok := snap.Get(s.aliasKey.Tenant, s.aliasKey.Path)
	if !ok {
		return aliastree.Empty()
	}
	tree, err := aliastree.ParseAndBuild([]byte(doc.Content))
	if err != nil {
		s.ll.ErrorContext(ctx, "Invalid tenant alias tree, keeping previous tree",
			slog.String("path", s.aliasKey.Path),
			slog.Any("error", err))
		return prev
	}
	s.ll.InfoContext(ctx, "Tenant alias tree loaded", slog.Int("tenants", tree.Len()))
	return tree
}

func entries(files []model.Configuration) []confcache.Entry {
	out := make([]confcache.Entry, 0, len(files))
	for _, f := range files {
		tenant, p := Locate(f.Path)
		out = append(out, confcache.Entry{Tenant: tenant, Config: model.NewConfiguration(p, f.Content)})
	}
	return out
}

var _ VersionedStore = (*gitstore.Store)(nil)
