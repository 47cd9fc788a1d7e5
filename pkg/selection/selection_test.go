package selection

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/config"
)

func item(name string) catalog.Item {
	return catalog.Item{Name: name, URL: "http://host/" + name + ".nsp"}
}

func TestToggleIsItsOwnInverse(t *testing.T) {
	s := New()
	s.Toggle(item("a"))
	s.Toggle(item("b"))
	before := s.URLs()

	assert.True(t, s.Toggle(item("c")))
	assert.False(t, s.Toggle(item("c")))
	assert.Equal(t, before, s.URLs())

	assert.False(t, s.Toggle(item("a")))
	assert.True(t, s.Toggle(item("a")))
	assert.ElementsMatch(t, before, s.URLs())
	assert.Equal(t, []string{"http://host/b.nsp", "http://host/a.nsp"}, s.URLs(), "re-selected items go last")
}

func TestToggleIgnoresInstalledEntries(t *testing.T) {
	s := New()
	assert.False(t, s.Toggle(catalog.Item{Name: "local only"}))
	assert.Zero(t, s.Len())
}

func TestSelectAllIsIdempotent(t *testing.T) {
	s := New()
	s.Toggle(item("b"))
	visible := []catalog.Item{item("a"), item("b"), {Name: "installed"}, item("c")}

	assert.Equal(t, 2, s.SelectAll(visible))
	first := s.URLs()
	assert.Equal(t, 0, s.SelectAll(visible))
	assert.Equal(t, first, s.URLs())
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("http://host/c.nsp"))
}

func TestClear(t *testing.T) {
	s := New()
	s.SelectAll([]catalog.Item{item("a"), item("b")})
	s.Clear()
	assert.Zero(t, s.Len())
	assert.False(t, s.Contains("http://host/a.nsp"))
	assert.True(t, s.Toggle(item("a")))
}

func TestRestoreDropsStaleURLs(t *testing.T) {
	first := item("a")
	dup := item("a")
	dup.Name = "a (again)"
	c := catalog.Catalog{Sections: []catalog.Section{
		{ID: "new", Items: []catalog.Item{first, item("b")}},
		{ID: "all", Items: []catalog.Item{dup, item("c")}},
	}}

	s := Restore([]string{"http://host/c.nsp", "http://host/gone.nsp", "http://host/a.nsp"}, c)
	assert.Equal(t, []string{"http://host/c.nsp", "http://host/a.nsp"}, s.URLs())
	assert.Equal(t, "a", s.Items()[1].Name, "first match in section order wins")
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	cfg.RememberSelection = true

	s := New()
	s.SelectAll([]catalog.Item{item("a"), item("b")})
	require.NoError(t, s.Persist(cfg))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://host/a.nsp", "http://host/b.nsp"}, loaded.Selection)

	c := catalog.Catalog{Sections: []catalog.Section{{ID: "all", Items: []catalog.Item{item("b")}}}}
	restored := RestoreFromConfig(loaded, c)
	assert.Equal(t, []string{"http://host/b.nsp"}, restored.URLs())
}

func TestPersistDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	cfg.RememberSelection = false

	s := New()
	s.Toggle(item("a"))
	require.NoError(t, s.Persist(cfg))
	assert.Empty(t, cfg.Selection)
	assert.NoFileExists(t, path)
	assert.Zero(t, RestoreFromConfig(cfg, catalog.Catalog{}).Len())
}
