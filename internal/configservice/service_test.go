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
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/confstore/internal/confcache"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

type publishedEvent struct {
	tenant string
	event  model.ChangeEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, tenant string, ev model.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{tenant: tenant, event: ev})
	return p.err
}

func (p *recordingPublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func newStore(t *testing.T) *gitstore.Store {
	t.Helper()
	store, err := gitstore.Open(context.Background(), gitstore.Options{
		LocalPath: filepath.Join(t.TempDir(), "repo"),
	})
	require.NoError(t, err)
	return store
}

func newService(t *testing.T, store VersionedStore, opts Options) *Service {
	t.Helper()
	svc := New(store, opts)
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func seed(t *testing.T, store *gitstore.Store, files map[string]string) string {
	t.Helper()
	var changes []gitstore.Change
	for p, content := range files {
		changes = append(changes, gitstore.WriteChange(p, content))
	}
	res, err := store.Apply(context.Background(), changes)
	require.NoError(t, err)
	return res.Commit
}

func TestService_OptimisticWriteScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	pub := &recordingPublisher{}
	svc := newService(t, store, Options{Publisher: pub})

	v1, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{
		Path: "/service/a.json", Content: "v1", OldConfigHash: model.AbsentHash,
	})
	require.NoError(t, err)
	c1 := v1.MainVersion()
	assert.False(t, v1.IsUndefined())

	v2, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{
		Path: "/service/a.json", Content: "v2", OldConfigHash: model.ContentHash("v1"),
	})
	require.NoError(t, err)
	c2 := v2.MainVersion()
	assert.NotEqual(t, c1, c2)

	_, err = svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{
		Path: "/service/a.json", Content: "v3", OldConfigHash: model.ContentHash("v1"),
	})
	assert.ErrorIs(t, err, ErrConcurrentConfigModification)

	ver, files, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, c2, ver.MainVersion())
	require.Len(t, files, 1)
	assert.Equal(t, "/config/tenants/ACME/service/a.json", files[0].Path)
	assert.Equal(t, "v2", files[0].Content)

	got, err := svc.GetConfiguration(ctx, "ACME", "/service/a.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, c2, svc.Version().MainVersion())

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, "ACME", events[0].tenant)
	assert.Equal(t, c1, events[0].event.Commit)
	assert.Equal(t, []string{"/config/tenants/ACME/service/a.json"}, events[0].event.Paths)
	assert.Equal(t, c2, events[1].event.Commit)
	assert.NotEqual(t, events[0].event.EventID, events[1].event.EventID)
	assert.NoError(t, events[1].event.Validate())
}

func TestService_StaleHashOnAbsentPath(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := newService(t, store, Options{})

	_, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{
		Path: "/a.yml", Content: "x", OldConfigHash: model.ContentHash("something"),
	})
	assert.ErrorIs(t, err, ErrConcurrentConfigModification)

	ver, files, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.True(t, ver.IsUndefined())
	assert.Empty(t, files)
}

func TestService_NoOpWriteIsNotPublished(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newService(t, newStore(t), Options{Publisher: pub})

	v1, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{Path: "/a.yml", Content: "same"})
	require.NoError(t, err)

	v2, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{
		Path: "/a.yml", Content: "same", OldConfigHash: model.ContentHash("same"),
	})
	require.NoError(t, err)
	assert.Equal(t, v1.MainVersion(), v2.MainVersion())
	assert.Len(t, pub.published(), 1)
}

func TestService_DeleteConfiguration(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newStore(t), Options{})

	_, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{Path: "/a.yml", Content: "a"})
	require.NoError(t, err)

	_, err = svc.DeleteConfiguration(ctx, "ACME", "/a.yml", model.AbsentHash)
	assert.ErrorIs(t, err, ErrConcurrentConfigModification)

	_, err = svc.DeleteConfiguration(ctx, "ACME", "/a.yml", model.ContentHash("a"))
	require.NoError(t, err)

	_, err = svc.GetConfiguration(ctx, "ACME", "/a.yml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_BatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := newService(t, store, Options{})

	_, err := svc.UpdateConfigurations(ctx, "ACME", []model.ConfigurationUpdateMessage{
		{Path: "/a.yml", Content: "a"},
		{Path: "/b.yml", Content: "b", OldConfigHash: "bogus"},
	})
	assert.ErrorIs(t, err, ErrConcurrentConfigModification)
	list, err := svc.ListConfigurations(ctx, "ACME")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.UpdateConfigurations(ctx, "ACME", []model.ConfigurationUpdateMessage{
		{Path: "/b.yml", Content: "b"},
		{Path: "/a.yml", Content: "a"},
	})
	require.NoError(t, err)
	list, err = svc.ListConfigurations(ctx, "ACME")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "/a.yml", list[0].Path)
	assert.Equal(t, "/b.yml", list[1].Path)

	_, err = svc.UpdateConfigurations(ctx, "ACME", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

const aliasDoc = `
tenants:
  - key: root
    mergeAsYml: ["*.yml"]
    children:
      - key: A
        mergeAsYml: ["*.yml"]
        children:
          - key: B
`

func TestService_AliasResolution(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, map[string]string{
		DefaultAliasTreePath:                    aliasDoc,
		StorePath("root", "/service/app.yml"):   "a: 1\nb: 1\n",
		StorePath("A", "/service/app.yml"):      "b: 2\n",
		StorePath("root", "/service/plain.txt"): "root",
		StorePath("A", "/service/plain.txt"):    "A",
		StorePath("root", "/only-root.txt"):     "from root",
	})
	svc := newService(t, store, Options{})
	assert.Equal(t, []string{"A", "root"}, svc.AliasTree().AncestorKeys("B"))

	// Merge-eligible on A: root content overridden by A's.
	got, err := svc.GetConfiguration(ctx, "A", "/service/app.yml")
	require.NoError(t, err)
	var merged map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(got.Content), &merged))
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged)

	// Not eligible on A: A's copy, nothing from root.
	got, err = svc.GetConfiguration(ctx, "A", "/service/plain.txt")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Content)

	// B declares no pattern: nearest ancestor wins without merging.
	got, err = svc.GetConfiguration(ctx, "B", "/service/app.yml")
	require.NoError(t, err)
	assert.Equal(t, "b: 2\n", got.Content)

	got, err = svc.GetConfiguration(ctx, "B", "/only-root.txt")
	require.NoError(t, err)
	assert.Equal(t, "from root", got.Content)

	_, err = svc.GetConfiguration(ctx, "B", "/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// Tenants outside the tree see only their own bucket.
	_, err = svc.GetConfiguration(ctx, "ZED", "/only-root.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := svc.GetConfigurations(ctx, "B", []string{"/only-root.txt", "/missing.txt"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "/only-root.txt", found[0].Path)
}

func TestService_InvalidAliasTreeKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, map[string]string{DefaultAliasTreePath: aliasDoc})
	svc := newService(t, store, Options{})
	require.Equal(t, 3, svc.AliasTree().Len())

	dup := "tenants:\n  - key: X\n    children:\n      - key: X\n"
	commit := seed(t, store, map[string]string{DefaultAliasTreePath: dup})
	_, err := svc.RefreshFromStore(ctx, commit, []string{DefaultAliasTreePath})
	require.NoError(t, err)

	assert.Equal(t, commit, svc.Version().MainVersion())
	assert.Equal(t, 3, svc.AliasTree().Len())
}

func TestService_RefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	var calls [][]confcache.Key
	svc := newService(t, store, Options{Listeners: []ChangeListener{
		ChangeListenerFunc(func(_ context.Context, _ model.ConfigVersion, changed []confcache.Key) {
			calls = append(calls, changed)
		}),
	}})

	// A peer commits directly to the shared store.
	commit := seed(t, store, map[string]string{StorePath("ACME", "/x.yml"): "peer"})
	paths := []string{StorePath("ACME", "/x.yml")}

	changed, err := svc.RefreshFromStore(ctx, commit, paths)
	require.NoError(t, err)
	assert.True(t, changed.Contains(confcache.Key{Tenant: "ACME", Path: "/x.yml"}))
	first := svc.Snapshot()

	changed, err = svc.RefreshFromStore(ctx, commit, paths)
	require.NoError(t, err)
	assert.Equal(t, 0, changed.Cardinality())
	second := svc.Snapshot()

	assert.Equal(t, first.Version(), second.Version())
	assert.Equal(t, first.Tenant("ACME"), second.Tenant("ACME"))
	require.Len(t, calls, 1)
	assert.Equal(t, []confcache.Key{{Tenant: "ACME", Path: "/x.yml"}}, calls[0])

	// A full refresh of the same state changes nothing either.
	changed, err = svc.RefreshFromStore(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, changed.Cardinality())
}

func TestService_RefreshPicksUpDeletes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, map[string]string{StorePath("ACME", "/x.yml"): "1", "/README.md": "hi"})
	svc := newService(t, store, Options{})

	readme, err := svc.GetConfiguration(ctx, "", "/README.md")
	require.NoError(t, err)
	assert.Equal(t, "hi", readme.Content)

	commit, err := store.Delete(ctx, StorePath("ACME", "/x.yml"))
	require.NoError(t, err)
	_, err = svc.RefreshFromStore(ctx, commit, []string{StorePath("ACME", "/x.yml")})
	require.NoError(t, err)

	_, err = svc.GetConfiguration(ctx, "ACME", "/x.yml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_TenantFromContext(t *testing.T) {
	svc := newService(t, newStore(t), Options{})
	ctx := tenantctx.WithTenant(context.Background(), "ACME")

	_, err := svc.UpdateConfiguration(ctx, "", model.ConfigurationUpdateMessage{Path: "/a.yml", Content: "a"})
	require.NoError(t, err)

	got, err := svc.GetConfiguration(context.Background(), "ACME", "/a.yml")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Content)

	_, err = svc.GetConfiguration(tenantctx.ClearTenant(ctx), "", "/a.yml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newStore(t), Options{})

	_, err := svc.GetConfiguration(ctx, "ACME", " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.GetConfiguration(ctx, "../etc", "/a.yml")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{Path: "/"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

type fakeStore struct {
	applyErr error
	applied  int
}

func (f *fakeStore) ReadAll(context.Context) (model.ConfigVersion, []model.Configuration, error) {
	return model.UndefinedVersion(), nil, nil
}

func (f *fakeStore) ReadSince(context.Context, string) (gitstore.Delta, error) {
	return gitstore.Delta{Version: model.UndefinedVersion()}, nil
}

func (f *fakeStore) Apply(context.Context, []gitstore.Change) (gitstore.Result, error) {
	f.applied++
	return gitstore.Result{}, f.applyErr
}

func TestService_StoreErrors(t *testing.T) {
	ctx := context.Background()

	conflict := &fakeStore{applyErr: fmt.Errorf("%w: rejected", gitstore.ErrWriteConflict)}
	svc := newService(t, conflict, Options{})
	_, err := svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{Path: "/a.yml", Content: "a"})
	assert.ErrorIs(t, err, ErrConcurrentConfigModification)
	assert.Equal(t, 1, conflict.applied)

	down := &fakeStore{applyErr: fmt.Errorf("%w: push: dial tcp", gitstore.ErrStoreUnavailable)}
	svc = newService(t, down, Options{})
	_, err = svc.UpdateConfiguration(ctx, "ACME", model.ConfigurationUpdateMessage{Path: "/a.yml", Content: "a"})
	assert.ErrorIs(t, err, gitstore.ErrStoreUnavailable)
	assert.False(t, errors.Is(err, ErrConcurrentConfigModification))
}

func TestService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, newStore(t), Options{Publisher: pub})

	_, err := svc.UpdateConfiguration(context.Background(), "ACME", model.ConfigurationUpdateMessage{Path: "/a.yml", Content: "a"})
	require.NoError(t, err)
	assert.Len(t, pub.published(), 1)
}

type fakeExternal struct {
	version string
	files   []model.Configuration
	err     error
	reads   int
}

func (f *fakeExternal) ReadAll(context.Context) (model.ConfigVersion, []model.Configuration, error) {
	f.reads++
	return model.NewConfigVersion(f.version), f.files, f.err
}

func TestService_ExternalSources(t *testing.T) {
	ctx := context.Background()
	platform := &fakeExternal{version: "e1", files: []model.Configuration{model.NewConfiguration("/shared.yml", "one")}}
	broken := &fakeExternal{err: errors.New("unreachable")}

	svc := New(newStore(t), Options{Externals: []External{
		{Name: "platform", Store: platform},
		{Name: "broken", Store: broken},
	}})
	err := svc.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	got, err := svc.GetExternalConfiguration(ctx, "platform", "/shared.yml")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Content)
	ev, ok := svc.Version().ExternalTenantVersion("platform")
	require.True(t, ok)
	assert.Equal(t, "e1", ev.MainVersion())

	_, err = svc.GetConfiguration(ctx, "", "/shared.yml")
	assert.ErrorIs(t, err, ErrNotFound)

	platform.version = "e2"
	platform.files = []model.Configuration{model.NewConfiguration("/shared.yml", "two")}
	broken.err = nil
	broken.version = "b1"
	require.NoError(t, svc.Reconcile(ctx))

	got, err = svc.GetExternalConfiguration(ctx, "platform", "/shared.yml")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)
	_, ok = svc.Version().ExternalTenantVersion("broken")
	assert.True(t, ok)

	_, err = svc.GetExternalConfiguration(ctx, "platform", "/nope.yml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocate(t *testing.T) {
	tests := []struct {
		in         string
		wantTenant string
		wantPath   string
	}{
		{"/config/tenants/ACME/service/a.yml", "ACME", "/service/a.yml"},
		{"config/tenants/ACME/a.yml", "ACME", "/a.yml"},
		{"/config/tenants/tenant-aliases.yml", confcache.CommonsTenant, "/config/tenants/tenant-aliases.yml"},
		{"/README.md", confcache.CommonsTenant, "/README.md"},
		{"/config/tenants/commons/x.yml", confcache.CommonsTenant, "/config/tenants/commons/x.yml"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tenant, p := Locate(tt.in)
			assert.Equal(t, tt.wantTenant, tenant)
			assert.Equal(t, tt.wantPath, p)
		})
	}

	tenant, p := Locate(StorePath("", "/x.yml"))
	assert.Equal(t, confcache.CommonsTenant, tenant)
	assert.Equal(t, "/x.yml", p)
}

func TestStorePathRoundTrip(t *testing.T) {
	tests := []struct {
		tenant string
		path   string
	}{
		{confcache.CommonsTenant, "/settings.yml"},
		{confcache.CommonsTenant, "/config/tenants/tenant-aliases.yml"},
		{confcache.CommonsTenant, "/config/tenants/commons/x.yml"},
		{"ACME", "/settings.yml"},
		{"ACME", "/service/a.yml"},
	}
	for _, tt := range tests {
		t.Run(tt.tenant+tt.path, func(t *testing.T) {
			tenant, p := Locate(StorePath(tt.tenant, tt.path))
			assert.Equal(t, tt.tenant, tenant)
			assert.Equal(t, tt.path, p)
		})
	}

	assert.Equal(t, "/settings.yml", StorePath("", "/settings.yml"))
	assert.Equal(t, "/config/tenants/ACME/settings.yml", StorePath("ACME", "/settings.yml"))
}

func TestService_CommonsRootFileIsWritable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, map[string]string{"/settings.yml": "root-level"})
	svc := newService(t, store, Options{})

	got, err := svc.GetConfiguration(ctx, "", "/settings.yml")
	require.NoError(t, err)
	assert.Equal(t, "root-level", got.Content)

	_, err = svc.UpdateConfiguration(ctx, "", model.ConfigurationUpdateMessage{
		Path: "/settings.yml", Content: "updated", OldConfigHash: model.ContentHash("root-level"),
	})
	require.NoError(t, err)

	got, err = svc.GetConfiguration(ctx, "", "/settings.yml")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)

	_, files, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/settings.yml", files[0].Path)
	assert.Equal(t, "updated", files[0].Content)
}

func TestService_CommonsWriteIntoTenantDirRejected(t *testing.T) {
	svc := newService(t, newStore(t), Options{})

	_, err := svc.UpdateConfiguration(context.Background(), "", model.ConfigurationUpdateMessage{
		Path: "/config/tenants/ACME/a.yml", Content: "x", OldConfigHash: model.AbsentHash,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_AliasTreePublishedWithSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newStore(t), Options{})

	aliasDoc := func(n int) string {
		doc := "tenants:\n"
		for i := 0; i < n; i++ {
			doc += fmt.Sprintf("  - key: T%d\n", i)
		}
		return doc
	}

	done := make(chan struct{})
	mismatches := make(chan string, 1)
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			v := svc.view.Load()
			marker, ok := v.snap.Get(confcache.CommonsTenant, "/marker.txt")
			if !ok {
				continue
			}
			if want := fmt.Sprint(v.tree.Len()); marker.Content != want {
				select {
				case mismatches <- fmt.Sprintf("tree has %s tenants, content expects %s", want, marker.Content):
				default:
				}
				return
			}
		}
	}()

	prevDoc, prevMarker := model.AbsentHash, model.AbsentHash
	for n := 1; n <= 20; n++ {
		doc, marker := aliasDoc(n), fmt.Sprint(n)
		_, err := svc.UpdateConfigurations(ctx, "", []model.ConfigurationUpdateMessage{
			{Path: DefaultAliasTreePath, Content: doc, OldConfigHash: prevDoc},
			{Path: "/marker.txt", Content: marker, OldConfigHash: prevMarker},
		})
		require.NoError(t, err)
		prevDoc, prevMarker = model.ContentHash(doc), model.ContentHash(marker)
	}
	close(done)

	select {
	case msg := <-mismatches:
		t.Fatal(msg)
	default:
	}
	assert.Equal(t, 20, svc.AliasTree().Len())
}
