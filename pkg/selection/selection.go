// pkg/selection/selection.go - URL-keyed multi-selection, persisted in the configuration.

package selection

import (
	"fmt"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/config"
	"github.com/windowsadmins/cimianshop/pkg/logging"
)

// Set is an ordered selection of catalog items keyed by URL.
// Items without a URL are never selected.
type Set struct {
	items []catalog.Item
	index map[string]int
}

// New returns an empty selection.
func New() *Set {
	return &Set{index: make(map[string]int)}
}

// Len returns the number of selected items.
func (s *Set) Len() int {
	return len(s.items)
}

// Contains reports whether an item with url is selected.
func (s *Set) Contains(url string) bool {
	_, ok := s.index[url]
	return ok
}

// Items returns the selected items in selection order.
func (s *Set) Items() []catalog.Item {
	return append([]catalog.Item(nil), s.items...)
}

// URLs returns the selected URLs in selection order.
func (s *Set) URLs() []string {
	urls := make([]string, 0, len(s.items))
	for _, it := range s.items {
		urls = append(urls, it.URL)
	}
	return urls
}

func (s *Set) add(item catalog.Item) bool {
	if !item.Installable() || s.Contains(item.URL) {
		return false
	}
	s.index[item.URL] = len(s.items)
	s.items = append(s.items, item)
	return true
}

func (s *Set) remove(url string) {
	i, ok := s.index[url]
	if !ok {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, url)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].URL] = j
	}
}

// Toggle selects item, or deselects it if already selected. It returns
// whether the item is selected afterwards.
func (s *Set) Toggle(item catalog.Item) bool {
	if !item.Installable() {
		return false
	}
	if s.Contains(item.URL) {
		s.remove(item.URL)
		return false
	}
	s.add(item)
	return true
}

// SelectAll adds every visible item not yet selected and returns how many were added.
func (s *Set) SelectAll(visible []catalog.Item) int {
	added := 0
	for _, it := range visible {
		if s.add(it) {
			added++
		}
	}
	return added
}

// Append adds items to the end of the selection, skipping ones already selected.
func (s *Set) Append(items ...catalog.Item) int {
	return s.SelectAll(items)
}

// Clear empties the selection.
func (s *Set) Clear() {
	s.items = nil
	s.index = make(map[string]int)
}

// Persist stores the selected URLs in cfg and saves it when RememberSelection is on.
func (s *Set) Persist(cfg *config.Configuration) error {
	if cfg == nil || !cfg.RememberSelection {
		return nil
	}
	cfg.Selection = s.URLs()
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to persist selection: %w", err)
	}
	logging.Debug("Persisted selection", "items", len(cfg.Selection))
	return nil
}

// Restore rebuilds a selection from urls by matching them against c in
// section order; the first match wins and URLs no longer offered are dropped.
func Restore(urls []string, c catalog.Catalog) *Set {
	s := New()
	dropped := 0
	for _, url := range urls {
		item, ok := c.FindByURL(url)
		if !ok {
			dropped++
			continue
		}
		s.add(item)
	}
	if dropped > 0 {
		logging.Info("Dropped stale selection entries", "dropped", dropped, "kept", s.Len())
	}
	return s
}

// RestoreFromConfig restores the remembered selection, or returns an empty one
// when RememberSelection is off.
func RestoreFromConfig(cfg *config.Configuration, c catalog.Catalog) *Set {
	if cfg == nil || !cfg.RememberSelection {
		return New()
	}
	return Restore(cfg.Selection, c)
}
