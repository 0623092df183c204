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

// Package confcache holds the in-memory, multi-tenant view of the
// configuration store.
//
// Readers get a Snapshot through an atomic load and never block. Updates are
// serialized, build a complete new Snapshot off to the side, and publish it
// with a single pointer swap, so a reader sees either all of an update or
// none of it.
package confcache

import (
	"maps"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/confstore/internal/model"
)

// Entry is a configuration placed in a tenant bucket.
type Entry struct {
	Tenant string
	Config model.Configuration
}

// Update describes one refresh cycle.
type Update struct {
	Version model.ConfigVersion

	// Full replaces every tenant bucket with Puts. Deletes are ignored.
	Full bool

	Puts    []Entry
	Deletes []Key

	// External replaces the named external buckets wholesale. A nil slice
	// removes the bucket.
	External map[string][]model.Configuration
}

// Cache is the published configuration snapshot plus its update lock.
type Cache struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// New returns an empty cache at the undefined version.
func New() *Cache {
	c := &Cache{}
	c.current.Store(emptySnapshot())
	return c
}

// Snapshot returns the currently published snapshot.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Version returns the version of the published snapshot.
func (c *Cache) Version() model.ConfigVersion {
	return c.current.Load().version
}

// Get looks up path in the tenant's own bucket.
func (c *Cache) Get(tenant, path string) (model.Configuration, bool) {
	return c.current.Load().Get(tenant, path)
}

// Apply builds and publishes the snapshot that results from u, returning the
// entries whose content actually changed.
func (c *Cache) Apply(u Update) mapset.Set[Key] {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current.Load()
	next := &Snapshot{
		version:  u.Version,
		tenants:  maps.Clone(old.tenants),
		external: maps.Clone(old.external),
		changed:  mapset.NewThreadUnsafeSet[Key](),
	}

	if u.Full {
		next.tenants = rebuildTenants(old, u.Puts, next.changed)
	} else {
		applyTenantChanges(old, next, u.Puts, u.Deletes)
	}

	for source, configs := range u.External {
		replaceExternal(old, next, source, configs)
	}

	c.current.Store(next)
	return next.changed.Clone()
}

func rebuildTenants(old *Snapshot, puts []Entry, changed mapset.Set[Key]) map[string]bucket {
	tenants := map[string]bucket{}
	for _, e := range puts {
		tenant := NormalizeTenant(e.Tenant)
		b, ok := tenants[tenant]
		if !ok {
			b = bucket{}
			tenants[tenant] = b
		}
		b[e.Config.Path] = e.Config
	}

	for tenant, b := range tenants {
		for path, cfg := range b {
			prev, ok := old.tenants[tenant][path]
			if !ok || prev.Content != cfg.Content {
				changed.Add(Key{Tenant: tenant, Path: path})
			}
		}
	}
	for tenant, b := range old.tenants {
		for path := range b {
			if _, ok := tenants[tenant][path]; !ok {
				changed.Add(Key{Tenant: tenant, Path: path})
			}
		}
	}
	return tenants
}

func applyTenantChanges(old, next *Snapshot, puts []Entry, deletes []Key) {
	// Each touched bucket is cloned once; published buckets stay untouched.
	cloned := map[string]bool{}
	writable := func(tenant string) bucket {
		if !cloned[tenant] {
			next.tenants[tenant] = maps.Clone(old.tenants[tenant])
			if next.tenants[tenant] == nil {
				next.tenants[tenant] = bucket{}
			}
			cloned[tenant] = true
		}
		return next.tenants[tenant]
	}

	for _, k := range deletes {
		tenant := NormalizeTenant(k.Tenant)
		if _, ok := next.tenants[tenant][k.Path]; !ok {
			continue
		}
		delete(writable(tenant), k.Path)
		next.changed.Add(Key{Tenant: tenant, Path: k.Path})
	}

	for _, e := range puts {
		tenant := NormalizeTenant(e.Tenant)
		if prev, ok := next.tenants[tenant][e.Config.Path]; ok && prev.Content == e.Config.Content {
			continue
		}
		writable(tenant)[e.Config.Path] = e.Config
		next.changed.Add(Key{Tenant: tenant, Path: e.Config.Path})
	}

	for tenant := range cloned {
		if len(next.tenants[tenant]) == 0 {
			delete(next.tenants, tenant)
		}
	}
}

func replaceExternal(old, next *Snapshot, source string, configs []model.Configuration) {
	var b bucket
	if configs != nil {
		b = make(bucket, len(configs))
		for _, cfg := range configs {
			b[cfg.Path] = cfg
		}
	}

	for path, cfg := range b {
		prev, ok := old.external[source][path]
		if !ok || prev.Content != cfg.Content {
			next.changed.Add(Key{Source: source, Path: path})
		}
	}
	for path := range old.external[source] {
		if _, ok := b[path]; !ok {
			next.changed.Add(Key{Source: source, Path: path})
		}
	}

	if b == nil {
		delete(next.external, source)
		return
	}
	next.external[source] = b
}
