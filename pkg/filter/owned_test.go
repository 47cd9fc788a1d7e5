package filter

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/registry"
)

const (
	baseA  uint64 = 0x0100000000010000
	patchA uint64 = 0x0100000000010800
	baseB  uint64 = 0x0100000000020000
	baseC  uint64 = 0x0100000000030000
)

// countingTitles wraps a session and counts registry calls.
type countingTitles struct {
	registry.Titles
	isInstalled int
	updateVer   int
}

func (c *countingTitles) IsInstalled(base uint64) (bool, error) {
	c.isInstalled++
	return c.Titles.IsInstalled(base)
}

func (c *countingTitles) UpdateVersion(base uint64) (uint32, error) {
	c.updateVer++
	return c.Titles.UpdateVersion(base)
}

type countingRegistry struct {
	inner registry.Registry
	last  *countingTitles
}

func (r *countingRegistry) Open() (registry.Titles, error) {
	t, err := r.inner.Open()
	if err != nil {
		return nil, err
	}
	r.last = &countingTitles{Titles: t}
	return r.last, nil
}

type failingRegistry struct{}

func (failingRegistry) Open() (registry.Titles, error) { return nil, errors.New("ns service down") }

// newRegistry installs base A at update v65536 and base B (no update recorded;
// the content-meta DB knows v131072 on SD). Base C is not installed.
func newRegistry(t *testing.T) *registry.SQLite {
	t.Helper()
	s := registry.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, s.AddTitle(registry.Record{ID: baseA, Kind: catalog.KindBase}, "Alpha"))
	require.NoError(t, s.AddTitle(registry.Record{ID: patchA, BaseID: baseA, Kind: catalog.KindUpdate, Version: 65536}, "Alpha Update"))
	require.NoError(t, s.AddTitle(registry.Record{ID: baseB, Kind: catalog.KindBase}, "Beta"))
	require.NoError(t, s.AddMetaKey(registry.StorageSD, registry.MetaKey{
		ID: catalog.PatchIDForBase(baseB), Kind: catalog.KindUpdate, Version: 131072,
	}))
	return s
}

func update(name, appID string, version uint32) catalog.Item {
	return catalog.Item{Name: name, URL: "http://host/" + name, Kind: catalog.KindUpdate, AppID: appID, Version: catalog.Some(version)}
}

func testCatalog() catalog.Catalog {
	return catalog.Catalog{Sections: []catalog.Section{
		{ID: "new", Title: "New", Items: []catalog.Item{
			{Name: "Gamma", URL: "http://host/gamma", Kind: catalog.KindBase, TitleID: catalog.Some(baseC)},
		}},
		{ID: catalog.SectionUpdates, Title: "Updates", Items: []catalog.Item{
			update("alpha-v1", "0100000000010800", 65536),  // equal to installed
			update("alpha-v2", "0100000000010800", 131072), // newer
			{Name: "alpha-nover", URL: "http://host/x", Kind: catalog.KindUpdate, AppID: "0100000000010800"},
			update("beta-v2", "0100000000020800", 131072),  // equal to content-meta version
			update("beta-v3", "0100000000020800", 196608),  // newer than content-meta version
			update("gamma-v1", "0100000000030800", 65536),  // base not installed
			{Name: "underivable", URL: "http://host/u", Kind: catalog.KindUpdate, Version: catalog.Some(uint32(9))},
		}},
		{ID: catalog.SectionDLC, Title: "DLC", Items: []catalog.Item{
			{Name: "alpha-dlc", URL: "http://host/ad", Kind: catalog.KindAddOn, AppID: "0100000000011001"},
			{Name: "gamma-dlc", URL: "http://host/gd", Kind: catalog.KindAddOn, AppID: "0100000000031001"},
			{Name: "alpha-patch-in-dlc", URL: "http://host/ap", Kind: catalog.KindUpdate, AppID: "0100000000010800", Version: catalog.Some(uint32(1))},
		}},
	}}
}

func names(s catalog.Section) []string {
	out := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, it.Name)
	}
	return out
}

func TestFilterOwned(t *testing.T) {
	reg := newRegistry(t)
	in := testCatalog()

	out := FilterOwned(in, reg, reg)

	updates, ok := out.Section(catalog.SectionUpdates)
	require.True(t, ok)
	assert.Equal(t, []string{"alpha-v2", "beta-v3"}, names(updates))

	dlc, ok := out.Section(catalog.SectionDLC)
	require.True(t, ok)
	assert.Equal(t, []string{"alpha-dlc"}, names(dlc), "updates in dlc must still be newer than installed")

	other, ok := out.Section("new")
	require.True(t, ok)
	assert.Len(t, other.Items, 1, "other sections are untouched")

	// Input is not modified.
	orig, _ := in.Section(catalog.SectionUpdates)
	assert.Len(t, orig.Items, 7)
}

func TestFilterOwnedNeverGrowsSections(t *testing.T) {
	reg := newRegistry(t)
	in := testCatalog()
	out := FilterOwned(in, reg, reg)

	require.Len(t, out.Sections, len(in.Sections))
	for i := range in.Sections {
		assert.LessOrEqual(t, len(out.Sections[i].Items), len(in.Sections[i].Items))
	}
}

func TestFilterOwnedWithoutMetaDB(t *testing.T) {
	reg := newRegistry(t)
	out := FilterOwned(testCatalog(), reg, nil)

	updates, _ := out.Section(catalog.SectionUpdates)
	assert.Equal(t, []string{"alpha-v2", "beta-v2", "beta-v3"}, names(updates))
}

func TestFilterOwnedRegistryUnavailable(t *testing.T) {
	in := testCatalog()
	out := FilterOwned(in, failingRegistry{}, nil)
	assert.Equal(t, in, out)
}

func TestFilterOwnedMemoizes(t *testing.T) {
	reg := &countingRegistry{inner: newRegistry(t)}
	FilterOwned(testCatalog(), reg, nil)

	require.NotNil(t, reg.last)
	// Only base C is looked up individually (A and B come from the scan).
	assert.Equal(t, 1, reg.last.isInstalled)
	// One update-version lookup per installed base.
	assert.Equal(t, 2, reg.last.updateVer)
}

func TestDebugLine(t *testing.T) {
	reg := newRegistry(t)
	line := Describe(reg, reg, update("alpha-v2", "0100000000010800", 131072))
	assert.Contains(t, line, "base=0100000000010000")
	assert.Contains(t, line, "installed=true")
	assert.Contains(t, line, "installed_ver=65536")
	assert.Contains(t, line, "item_ver=131072")
	assert.Contains(t, line, "kind=129")

	assert.Contains(t, Describe(failingRegistry{}, nil, catalog.Item{}), "registry unavailable")
}

func TestSearchAndItemFilter(t *testing.T) {
	items := []catalog.Item{{Name: "Alpha Quest"}, {Name: "beta run"}, {Name: "Gamma"}}
	assert.Equal(t, items, Search(items, "  "))
	assert.Equal(t, []catalog.Item{{Name: "beta run"}}, Search(items, "BETA"))

	f := NewItemFilter(nil)
	assert.False(t, f.HasFilter())
	assert.Equal(t, items, f.FilterItems(items))

	f.SetItems([]string{" gamma ", "alpha quest"})
	assert.Equal(t, []catalog.Item{{Name: "Alpha Quest"}, {Name: "Gamma"}}, f.FilterItems(items))

	f.SetSearch("quest")
	assert.Equal(t, []catalog.Item{{Name: "Alpha Quest"}}, f.FilterItems(items))

	c := catalog.Catalog{Sections: []catalog.Section{
		{ID: "a", Items: items[:1]},
		{ID: "b", Items: items[1:]},
	}}
	f = NewItemFilter(nil)
	f.SetSection("b")
	assert.Equal(t, items[1:], f.Apply(c))
}

func TestFilterOwnedDropsUpdatesWithOnlyNumericID(t *testing.T) {
	reg := newRegistry(t)
	numericOnly := catalog.Item{
		Name:    "alpha-numeric",
		URL:     "http://host/an",
		Kind:    catalog.KindUpdate,
		TitleID: catalog.Some(patchA),
		Version: catalog.Some(uint32(999999)),
	}
	in := catalog.Catalog{Sections: []catalog.Section{
		{ID: catalog.SectionUpdates, Title: "Updates", Items: []catalog.Item{numericOnly}},
	}}

	out := FilterOwned(in, reg, reg)
	updates, ok := out.Section(catalog.SectionUpdates)
	require.True(t, ok)
	assert.Empty(t, updates.Items, "a base cannot be derived from the numeric id of an update")
}
