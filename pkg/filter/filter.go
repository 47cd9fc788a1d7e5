// pkg/filter/filter.go - Package for narrowing catalog items by name or search text

package filter

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/logging"
)

// ItemFilter holds the filtering configuration and state
type ItemFilter struct {
	items   []string
	search  string
	section string
	logger  *logging.Logger
}

// NewItemFilter creates a new ItemFilter instance
func NewItemFilter(logger *logging.Logger) *ItemFilter {
	return &ItemFilter{
		logger: logger,
	}
}

// RegisterFlags registers --item, --search and --section on fs.
func (f *ItemFilter) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(
		&f.items,
		"item",
		nil,
		"Only the specified item name(s). "+
			"Can be repeated or given as a comma-separated list.",
	)
	fs.StringVar(&f.search, "search", "", "Case-insensitive substring the item name must contain.")
	fs.StringVar(&f.section, "section", "", "Only items of the catalog section with this id.")
}

// SetItems allows setting the items filter programmatically
func (f *ItemFilter) SetItems(items []string) {
	f.items = items
}

// SetSearch sets the search text programmatically.
func (f *ItemFilter) SetSearch(query string) {
	f.search = query
}

// SetSection restricts results to one section id.
func (f *ItemFilter) SetSection(id string) {
	f.section = id
}

// Section returns the section restriction, "" for every section.
func (f *ItemFilter) Section() string {
	return f.section
}

// HasFilter returns true if any name or search filter is set.
func (f *ItemFilter) HasFilter() bool {
	return len(f.items) > 0 || strings.TrimSpace(f.search) != ""
}

// FilterItems returns the items whose name is listed in --item (case-insensitive)
// and contains the --search text. If no filter is set, returns all items unchanged.
func (f *ItemFilter) FilterItems(all []catalog.Item) []catalog.Item {
	if !f.HasFilter() {
		return all
	}

	out := Search(all, f.search)
	if len(f.items) == 0 {
		return out
	}

	// Create a map for case-insensitive lookup
	wantMap := make(map[string]struct{}, len(f.items))
	for _, item := range f.items {
		wantMap[strings.ToLower(strings.TrimSpace(item))] = struct{}{}
	}

	var filtered []catalog.Item
	for _, it := range out {
		if _, ok := wantMap[strings.ToLower(it.Name)]; ok {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

// Apply selects the items of a catalog that pass the section, name and search filters.
func (f *ItemFilter) Apply(c catalog.Catalog) []catalog.Item {
	var items []catalog.Item
	for _, s := range c.Sections {
		if f.section != "" && s.ID != f.section {
			continue
		}
		items = append(items, s.Items...)
	}

	filtered := f.FilterItems(items)
	if f.logger != nil && f.HasFilter() {
		f.logger.Info("Filtered catalog to %d of %d item(s).", len(filtered), len(items))
	}
	return filtered
}

// SetLogger allows updating the logger after initialization
func (f *ItemFilter) SetLogger(logger *logging.Logger) {
	f.logger = logger
}

// Search returns the items whose name contains query, ignoring case.
// An empty query returns items unchanged.
func Search(items []catalog.Item, query string) []catalog.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	var out []catalog.Item
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), q) {
			out = append(out, it)
		}
	}
	return out
}
