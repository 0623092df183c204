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

package confcache

import (
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/confstore/internal/model"
)

// CommonsTenant is the bucket for configuration with no tenant.
const CommonsTenant = "commons"

// NormalizeTenant maps a blank tenant key to CommonsTenant.
func NormalizeTenant(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return CommonsTenant
	}
	return tenant
}

// Key names one cache entry. Source is set for external entries and empty
// for tenant entries.
type Key struct {
	Tenant string
	Source string
	Path   string
}

func (k Key) String() string {
	if k.Source != "" {
		return "external:" + k.Source + ":" + k.Path
	}
	return k.Tenant + ":" + k.Path
}

type bucket map[string]model.Configuration

// Snapshot is one immutable, fully built view of the cache. Nothing reachable
// from a published Snapshot is ever modified.
type Snapshot struct {
	version  model.ConfigVersion
	tenants  map[string]bucket
	external map[string]bucket
	changed  mapset.Set[Key]
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		version:  model.UndefinedVersion(),
		tenants:  map[string]bucket{},
		external: map[string]bucket{},
		changed:  mapset.NewThreadUnsafeSet[Key](),
	}
}

// Version is the durable version this snapshot reflects.
func (s *Snapshot) Version() model.ConfigVersion {
	return s.version
}

// Get returns the entry at path in the tenant's own bucket only.
func (s *Snapshot) Get(tenant, path string) (model.Configuration, bool) {
	c, ok := s.tenants[NormalizeTenant(tenant)][path]
	return c, ok
}

// Tenant returns a copy of one tenant bucket.
func (s *Snapshot) Tenant(tenant string) map[string]model.Configuration {
	return maps.Clone(map[string]model.Configuration(s.tenants[NormalizeTenant(tenant)]))
}

// Tenants returns the keys of all non-empty tenant buckets, sorted.
func (s *Snapshot) Tenants() []string {
	return slices.Sorted(maps.Keys(s.tenants))
}

// GetExternal returns an entry from an external source bucket.
func (s *Snapshot) GetExternal(source, path string) (model.Configuration, bool) {
	c, ok := s.external[source][path]
	return c, ok
}

// ExternalConfigs returns the configurations of one external source.
func (s *Snapshot) ExternalConfigs(source string) mapset.Set[model.Configuration] {
	out := mapset.NewThreadUnsafeSet[model.Configuration]()
	for _, c := range s.external[source] {
		out.Add(c)
	}
	return out
}

// ExternalSources returns the tags of all external buckets, sorted.
func (s *Snapshot) ExternalSources() []string {
	return slices.Sorted(maps.Keys(s.external))
}

// ChangedPaths returns the entries changed by the update that produced this
// snapshot.
func (s *Snapshot) ChangedPaths() mapset.Set[Key] {
	return s.changed.Clone()
}

// Size returns the number of tenant entries.
func (s *Snapshot) Size() int {
	n := 0
	for _, b := range s.tenants {
		n += len(b)
	}
	return n
}
