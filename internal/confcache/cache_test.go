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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/confstore/internal/model"
)

func put(tenant, path, content string) Entry {
	return Entry{Tenant: tenant, Config: model.NewConfiguration(path, content)}
}

func TestCache_EmptyByDefault(t *testing.T) {
	c := New()
	assert.True(t, c.Version().IsUndefined())
	_, ok := c.Get("ACME", "/a.yml")
	assert.False(t, ok)
	assert.Empty(t, c.Snapshot().Tenants())
}

func TestCache_BlankTenantIsCommons(t *testing.T) {
	c := New()
	c.Apply(Update{Version: model.NewConfigVersion("c1"), Puts: []Entry{put(" ", "/a.yml", "x")}})

	got, ok := c.Get(CommonsTenant, "/a.yml")
	require.True(t, ok)
	assert.Equal(t, "x", got.Content)

	got, ok = c.Get("", "/a.yml")
	require.True(t, ok)
	assert.Equal(t, "x", got.Content)
}

func TestCache_IncrementalChanges(t *testing.T) {
	c := New()
	changed := c.Apply(Update{
		Version: model.NewConfigVersion("c1"),
		Puts:    []Entry{put("ACME", "/a.yml", "1"), put("ACME", "/b.yml", "1"), put("ZED", "/a.yml", "z")},
	})
	assert.Equal(t, 3, changed.Cardinality())
	before := c.Snapshot()

	changed = c.Apply(Update{
		Version: model.NewConfigVersion("c2"),
		Puts:    []Entry{put("ACME", "/a.yml", "2"), put("ACME", "/b.yml", "1")},
		Deletes: []Key{{Tenant: "ZED", Path: "/a.yml"}, {Tenant: "ZED", Path: "/missing.yml"}},
	})
	assert.True(t, changed.Contains(Key{Tenant: "ACME", Path: "/a.yml"}))
	assert.True(t, changed.Contains(Key{Tenant: "ZED", Path: "/a.yml"}))
	assert.Equal(t, 2, changed.Cardinality())

	got, _ := c.Get("ACME", "/a.yml")
	assert.Equal(t, "2", got.Content)
	assert.Equal(t, []string{"ACME"}, c.Snapshot().Tenants())
	assert.Equal(t, "c2", c.Version().MainVersion())

	// The previously published snapshot is untouched.
	old, _ := before.Get("ACME", "/a.yml")
	assert.Equal(t, "1", old.Content)
	_, ok := before.Get("ZED", "/a.yml")
	assert.True(t, ok)
	assert.Equal(t, "c1", before.Version().MainVersion())
}

func TestCache_FullReplace(t *testing.T) {
	c := New()
	c.Apply(Update{
		Version: model.NewConfigVersion("c1"),
		Puts:    []Entry{put("ACME", "/a.yml", "1"), put("ACME", "/gone.yml", "1")},
	})

	changed := c.Apply(Update{
		Version: model.NewConfigVersion("c2"),
		Full:    true,
		Puts:    []Entry{put("ACME", "/a.yml", "1"), put("NEW", "/n.yml", "n")},
	})
	assert.ElementsMatch(t, []Key{
		{Tenant: "ACME", Path: "/gone.yml"},
		{Tenant: "NEW", Path: "/n.yml"},
	}, changed.ToSlice())
	assert.Equal(t, 2, c.Snapshot().Size())

	// Applying the same full state again changes nothing.
	changed = c.Apply(Update{
		Version: model.NewConfigVersion("c2"),
		Full:    true,
		Puts:    []Entry{put("ACME", "/a.yml", "1"), put("NEW", "/n.yml", "n")},
	})
	assert.Equal(t, 0, changed.Cardinality())
}

func TestCache_ExternalBucketsAreSeparate(t *testing.T) {
	c := New()
	c.Apply(Update{
		Version:  model.NewConfigVersion("c1"),
		Puts:     []Entry{put(CommonsTenant, "/shared.yml", "tenant")},
		External: map[string][]model.Configuration{"platform": {model.NewConfiguration("/shared.yml", "external")}},
	})

	got, ok := c.Get(CommonsTenant, "/shared.yml")
	require.True(t, ok)
	assert.Equal(t, "tenant", got.Content)

	ext, ok := c.Snapshot().GetExternal("platform", "/shared.yml")
	require.True(t, ok)
	assert.Equal(t, "external", ext.Content)
	assert.Equal(t, 1, c.Snapshot().ExternalConfigs("platform").Cardinality())
	assert.Equal(t, []string{"platform"}, c.Snapshot().ExternalSources())

	changed := c.Apply(Update{
		Version:  model.NewConfigVersion("c1"),
		External: map[string][]model.Configuration{"platform": nil},
	})
	assert.True(t, changed.Contains(Key{Source: "platform", Path: "/shared.yml"}))
	assert.Empty(t, c.Snapshot().ExternalSources())
}

func TestCache_ReadersSeeWholeUpdates(t *testing.T) {
	c := New()
	c.Apply(Update{Version: model.NewConfigVersion("c0"), Puts: []Entry{put("T", "/a", "0"), put("T", "/b", "0")}})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			v := string(rune('0' + i%10))
			c.Apply(Update{Version: model.NewConfigVersion(v), Puts: []Entry{put("T", "/a", v), put("T", "/b", v)}})
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		s := c.Snapshot()
		a, _ := s.Get("T", "/a")
		b, _ := s.Get("T", "/b")
		require.Equal(t, a.Content, b.Content)
	}
}
