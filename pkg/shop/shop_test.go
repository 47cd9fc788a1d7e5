package shop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimianshop/pkg/cache"
	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/metrics"
	"github.com/windowsadmins/cimianshop/pkg/registry"
)

const scenarioBody = `{"sections":[{"id":"all","title":"All","items":[{"url":"/a.nsp","name":"Game A","size":100}]}]}`

type fakeShop struct {
	mu       sync.Mutex
	hits     map[string]int
	sections func(w http.ResponseWriter)
	flat     func(w http.ResponseWriter)
}

func (f *fakeShop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	sections, flat := f.sections, f.flat
	f.mu.Unlock()

	switch r.URL.Path {
	case SectionsPath:
		sections(w)
	case "/":
		flat(w)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeShop) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeShop) set(sections, flat func(w http.ResponseWriter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sections != nil {
		f.sections = sections
	}
	if flat != nil {
		f.flat = flat
	}
}

func jsonBody(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func status(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.WriteHeader(code) }
}

func htmlPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("<html><title>Login</title></html>"))
}

type testEnv struct {
	shop   *fakeShop
	server *httptest.Server
	client *Client
	offset time.Duration
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		shop: &fakeShop{hits: map[string]int{}, sections: jsonBody(scenarioBody), flat: jsonBody(`{"files":[]}`)},
	}
	env.server = httptest.NewServer(env.shop)
	t.Cleanup(env.server.Close)

	m := metrics.NewMetrics()
	c := cache.New(filepath.Join(t.TempDir(), "cache"), m)
	c.SetClock(func() time.Time { return time.Now().Add(env.offset) })
	env.client = NewClientWith(env.server.URL+"/", download.Credentials{}, download.NewFetcher(m), c)
	return env
}

func TestSyncScenario(t *testing.T) {
	env := newEnv(t)
	cat, err := env.client.Sync(context.Background(), true)
	require.NoError(t, err)

	require.Len(t, cat.Sections, 1)
	s := cat.Sections[0]
	assert.Equal(t, "all", s.ID)
	require.Len(t, s.Items, 1)
	assert.Equal(t, "Game A", s.Items[0].Name)
	assert.Equal(t, env.server.URL+"/a.nsp", s.Items[0].URL)
	assert.Equal(t, uint64(100), s.Items[0].Size)
}

func TestSyncUsesFreshCache(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	first, err := env.client.Sync(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, env.shop.count(SectionsPath))

	env.offset = 299 * time.Second
	second, err := env.client.Sync(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, env.shop.count(SectionsPath), "no network call within the TTL")
	assert.Equal(t, first, second)

	env.offset = 301 * time.Second
	_, err = env.client.Sync(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, env.shop.count(SectionsPath), "expired cache refetches")

	_, err = env.client.Sync(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, env.shop.count(SectionsPath), "cache bypassed when not allowed")
}

func TestPurgeCache(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.client.Sync(ctx, true)
	require.NoError(t, err)
	env.client.PurgeCache()

	_, err = env.client.Sync(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, env.shop.count(SectionsPath), "purged cache is not served")

	env.client.PurgeCache()
	env.shop.set(status(http.StatusInternalServerError), nil)
	_, err = env.client.Sync(ctx, true)
	assert.Error(t, err, "no stale copy left to fall back on")
}

func TestSyncFlatFallback(t *testing.T) {
	env := newEnv(t)
	env.shop.set(status(http.StatusNotFound), jsonBody(`{"files":[{"url":"/z.nsp#Zeta"},{"url":"/a.nsp","size":5}]}`))

	cat, err := env.client.Sync(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, cat.Sections, 1)
	all := cat.Sections[0]
	assert.Equal(t, catalog.SectionAll, all.ID)
	assert.Equal(t, "All", all.Title)
	require.Len(t, all.Items, 2)
	assert.Equal(t, "a.nsp", all.Items[0].Name)
	assert.Equal(t, "Zeta", all.Items[1].Name)

	_, err = env.client.Sync(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, env.shop.count("/"), "flat catalogs are not cached")
}

func TestSyncFlatServerError(t *testing.T) {
	env := newEnv(t)
	env.shop.set(status(http.StatusNotFound), jsonBody(`{"error":"Shop is closed"}`))

	_, err := env.client.Sync(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrParse)
	assert.Contains(t, err.Error(), "Shop is closed")
}

func TestSyncEmptyFlatCatalog(t *testing.T) {
	env := newEnv(t)
	env.shop.set(status(http.StatusNotFound), nil)

	cat, err := env.client.Sync(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, cat.Empty())
}

func TestSyncAuthPage(t *testing.T) {
	env := newEnv(t)
	env.shop.set(htmlPage, nil)

	_, err := env.client.Sync(context.Background(), true)
	assert.ErrorIs(t, err, download.ErrAuthPage)
}

func TestSyncStaleFallback(t *testing.T) {
	tests := []struct {
		name      string
		breakShop func(env *testEnv)
	}{
		{"auth page", func(env *testEnv) { env.shop.set(htmlPage, nil) }},
		{"unauthorized", func(env *testEnv) { env.shop.set(status(http.StatusUnauthorized), nil) }},
		{"malformed", func(env *testEnv) { env.shop.set(jsonBody(`{"sections":`), nil) }},
		{"flat failure", func(env *testEnv) {
			env.shop.set(status(http.StatusNotFound), jsonBody(`{"error":"down"}`))
		}},
		{"transport", func(env *testEnv) { env.server.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			ctx := context.Background()
			want, err := env.client.Sync(ctx, true)
			require.NoError(t, err)

			env.offset = time.Hour
			tt.breakShop(env)

			got, err := env.client.Sync(ctx, true)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = env.client.Sync(ctx, false)
			assert.Error(t, err, "no fallback without cache permission")
		})
	}
}

func TestSyncWithoutURL(t *testing.T) {
	c := NewClientWith("   ", download.Credentials{}, download.NewFetcher(metrics.NewMetrics()), nil)
	_, err := c.Sync(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoURL)
	assert.Empty(t, c.MOTD(context.Background()))
}

func TestMOTD(t *testing.T) {
	env := newEnv(t)
	env.shop.set(nil, jsonBody(`{"success":"<b>Welcome</b> to the <script>x()</script>shop","files":[]}`))
	assert.Equal(t, "Welcome to the shop", env.client.MOTD(context.Background()))

	env.shop.set(nil, status(http.StatusUnauthorized))
	assert.Empty(t, env.client.MOTD(context.Background()))

	env.shop.set(nil, jsonBody("TINFOIL\x00"))
	assert.Empty(t, env.client.MOTD(context.Background()))

	env.shop.set(nil, jsonBody(`{"files":[]}`))
	assert.Empty(t, env.client.MOTD(context.Background()))
}

func TestPrepare(t *testing.T) {
	reg := registry.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	base := uint64(0x0100000000010000)
	require.NoError(t, reg.AddTitle(registry.Record{ID: base, Kind: catalog.KindBase}, "Alpha"))
	require.NoError(t, reg.AddTitle(registry.Record{ID: base | 0x800, BaseID: base, Kind: catalog.KindUpdate, Version: 65536}, "Alpha Update"))

	old := catalog.Item{Name: "alpha-v1", URL: "http://h/1", Kind: catalog.KindUpdate, AppID: "0100000000010800", Version: catalog.Some(uint32(65536))}
	newer := catalog.Item{Name: "alpha-v2", URL: "http://h/2", Kind: catalog.KindUpdate, AppID: "0100000000010800", Version: catalog.Some(uint32(131072))}
	in := catalog.Catalog{Sections: []catalog.Section{
		{ID: catalog.SectionUpdates, Title: "Updates", Items: []catalog.Item{old, newer}},
	}}

	p := Prepare(in, reg, reg)
	require.Len(t, p.Catalog.Sections, 2)
	assert.Equal(t, catalog.SectionInstalled, p.Catalog.Sections[0].ID)
	assert.Equal(t, []catalog.Item{old, newer}, p.AvailableUpdates, "snapshot taken before filtering")

	updates, ok := p.Catalog.Section(catalog.SectionUpdates)
	require.True(t, ok)
	assert.Equal(t, []catalog.Item{newer}, updates.Items)

	plain := Prepare(in, nil, nil)
	assert.Equal(t, in, plain.Catalog)
}
