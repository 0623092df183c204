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
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cardinalhq/confstore/internal/aliastree"
	"github.com/cardinalhq/confstore/internal/confcache"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
	"github.com/cardinalhq/confstore/internal/yamlmerge"
)

// VersionedStore is the durable backend of the service.
type VersionedStore interface {
	ReadAll(ctx context.Context) (model.ConfigVersion, []model.Configuration, error)
	ReadSince(ctx context.Context, since string) (gitstore.Delta, error)
	Apply(ctx context.Context, changes []gitstore.Change) (gitstore.Result, error)
}

// ExternalStore is a read-only source of shared configuration.
type ExternalStore interface {
	ReadAll(ctx context.Context) (model.ConfigVersion, []model.Configuration, error)
}

// External is a named external source.
type External struct {
	Name  string
	Store ExternalStore
}

// Publisher broadcasts change events after a commit. Events are keyed by
// tenant.
type Publisher interface {
	PublishChange(ctx context.Context, tenant string, ev model.ChangeEvent) error
}

// ChangeListener is told about every refresh cycle that changed the cache.
type ChangeListener interface {
	ConfigurationsChanged(ctx context.Context, version model.ConfigVersion, changed []confcache.Key)
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(ctx context.Context, version model.ConfigVersion, changed []confcache.Key)

func (f ChangeListenerFunc) ConfigurationsChanged(ctx context.Context, version model.ConfigVersion, changed []confcache.Key) {
	f(ctx, version, changed)
}

type Options struct {
	// AliasTreePath is the store path of the alias tree document. Defaults
	// to DefaultAliasTreePath.
	AliasTreePath string

	Externals []External
	Publisher Publisher
	Listeners []ChangeListener
	Logger    *slog.Logger
}

// Service is the configuration service of one node.
type Service struct {
	store     VersionedStore
	externals []External
	publisher Publisher
	listeners []ChangeListener
	aliasKey  confcache.Key

	cache *confcache.Cache
	view  atomic.Pointer[view]

	// writeMu orders local writes from hash check to cache refresh.
	writeMu sync.Mutex
	// refreshMu pairs each store read with the cache update built from it.
	refreshMu sync.Mutex

	ll *slog.Logger
}

// New returns a service with an empty cache. Call Load before serving.
func New(store VersionedStore, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	aliasPath := DefaultAliasTreePath
	if opts.AliasTreePath != "" {
		aliasPath = opts.AliasTreePath
	}
	aliasTenant, aliasRel := Locate(aliasPath)
	s := &Service{
		store:     store,
		externals: slices.Clone(opts.Externals),
		publisher: opts.Publisher,
		listeners: slices.Clone(opts.Listeners),
		aliasKey:  confcache.Key{Tenant: aliasTenant, Path: aliasRel},
		cache:     confcache.New(),
		ll:        opts.Logger.With(slog.String("component", "configservice")),
	}
	s.view.Store(&view{snap: s.cache.Snapshot(), tree: aliastree.Empty()})
	return s
}

// view pairs a cache snapshot with the alias tree built from it, so readers
// never combine new content with an old tree.
type view struct {
	snap *confcache.Snapshot
	tree *aliastree.Tree
}

// Version returns the version the cache currently reflects.
func (s *Service) Version() model.ConfigVersion {
	return s.view.Load().snap.Version()
}

// AliasTree returns the published alias tree.
func (s *Service) AliasTree() *aliastree.Tree {
	return s.view.Load().tree
}

// Snapshot returns the published cache snapshot.
func (s *Service) Snapshot() *confcache.Snapshot {
	return s.view.Load().snap
}

func (s *Service) scope(ctx context.Context, tenant, p string) (string, string, error) {
	tenant, err := cleanTenant(tenantctx.TenantOr(ctx, tenant))
	if err != nil {
		return "", "", err
	}
	p, err = cleanPath(p)
	if err != nil {
		return "", "", err
	}
	return tenant, p, nil
}

// GetConfiguration resolves path for tenant from the cache. A blank tenant
// falls back to the tenant bound to ctx and then to the commons tenant.
func (s *Service) GetConfiguration(ctx context.Context, tenant, p string) (model.Configuration, error) {
	tenant, p, err := s.scope(ctx, tenant, p)
	if err != nil {
		return model.Configuration{}, err
	}
	v := s.view.Load()
	return s.resolve(ctx, v.snap, v.tree, tenant, p)
}

// GetConfigurations resolves several paths against one snapshot. Paths that
// resolve to nothing are left out.
func (s *Service) GetConfigurations(ctx context.Context, tenant string, paths []string) ([]model.Configuration, error) {
	v := s.view.Load()
	snap, tree := v.snap, v.tree
	out := make([]model.Configuration, 0, len(paths))
	for _, raw := range paths {
		t, p, err := s.scope(ctx, tenant, raw)
		if err != nil {
			return nil, err
		}
		c, err := s.resolve(ctx, snap, tree, t, p)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ListConfigurations returns the tenant's own entries sorted by path. Alias
// ancestors are not consulted.
func (s *Service) ListConfigurations(ctx context.Context, tenant string) ([]model.Configuration, error) {
	tenant, err := cleanTenant(tenantctx.TenantOr(ctx, tenant))
	if err != nil {
		return nil, err
	}
	bucket := s.Snapshot().Tenant(tenant)
	out := make([]model.Configuration, 0, len(bucket))
	for _, c := range bucket {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Configuration) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// GetExternalConfiguration returns a file from an external source.
func (s *Service) GetExternalConfiguration(_ context.Context, source, p string) (model.Configuration, error) {
	p, err := cleanPath(p)
	if err != nil {
		return model.Configuration{}, err
	}
	c, ok := s.Snapshot().GetExternal(source, p)
	if !ok {
		return model.Configuration{}, fmt.Errorf("%w: external %s %s", ErrNotFound, source, p)
	}
	return c, nil
}

func (s *Service) resolve(ctx context.Context, snap *confcache.Snapshot, tree *aliastree.Tree, tenant, p string) (model.Configuration, error) {
	if chain := tree.MergeChain(tenant, p); len(chain) > 1 {
		return s.merged(ctx, snap, chain, tenant, p)
	}

	if c, ok := snap.Get(tenant, p); ok {
		return c, nil
	}
	for _, a := range tree.GetAncestors(tenant) {
		if c, ok := snap.Get(a.Key(), p); ok {
			return c, nil
		}
	}
	return model.Configuration{}, fmt.Errorf("%w: %s %s", ErrNotFound, tenant, p)
}

// merged combines the copies of p along chain, root first.
func (s *Service) merged(ctx context.Context, snap *confcache.Snapshot, chain []string, tenant, p string) (model.Configuration, error) {
	var (
		docs    []string
		nearest model.Configuration
	)
	for _, key := range chain {
		if c, ok := snap.Get(key, p); ok {
			docs = append(docs, c.Content)
			nearest = c
		}
	}
	switch len(docs) {
	case 0:
		return model.Configuration{}, fmt.Errorf("%w: %s %s", ErrNotFound, tenant, p)
	case 1:
		return nearest, nil
	}

	content, err := yamlmerge.Merge(docs...)
	if err != nil {
		s.ll.WarnContext(ctx, "Merge failed, serving nearest copy",
			slog.String("tenant", tenant),
			slog.String("path", p),
			slog.Any("chain", chain),
			slog.Any("error", err))
		return nearest, nil
	}
	return model.NewConfiguration(p, content), nil
}
