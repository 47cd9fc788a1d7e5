// pkg/catalog/catalog.go - catalog data model: items, sections, and the catalog value.

package catalog

import (
	"strings"
)

// Reserved section identifiers.
const (
	SectionAll       = "all"
	SectionUpdates   = "updates"
	SectionDLC       = "dlc"
	SectionInstalled = "installed"
)

// Kind classifies an item as a base package, an update, or an add-on.
type Kind int

const (
	KindUnknown Kind = iota
	KindBase
	KindUpdate
	KindAddOn
)

// Content-meta type codes used by catalog servers for app_type.
const (
	metaTypeApplication = 0x80
	metaTypePatch       = 0x81
	metaTypeAddOn       = 0x82
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindUpdate:
		return "update"
	case KindAddOn:
		return "addon"
	default:
		return "unknown"
	}
}

// Code returns the numeric content-meta code for the kind, -1 for Unknown.
func (k Kind) Code() int {
	switch k {
	case KindBase:
		return metaTypeApplication
	case KindUpdate:
		return metaTypePatch
	case KindAddOn:
		return metaTypeAddOn
	default:
		return -1
	}
}

// KindFromCode maps a content-meta code to a Kind.
func KindFromCode(code int64) Kind {
	switch code {
	case metaTypeApplication:
		return KindBase
	case metaTypePatch:
		return KindUpdate
	case metaTypeAddOn:
		return KindAddOn
	default:
		return KindUnknown
	}
}

// ParseKind maps the string synonyms accepted in app_type to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base":
		return KindBase, true
	case "upd", "update", "patch":
		return KindUpdate, true
	case "dlc", "addon":
		return KindAddOn, true
	default:
		return KindUnknown, false
	}
}

// Optional holds a value together with whether it was present.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// Item is a single catalog entry.
type Item struct {
	Name    string
	URL     string // empty for locally known entries
	IconURL string
	Size    uint64
	TitleID Optional[uint64]
	Version Optional[uint32]
	Kind    Kind
	AppID   string // alternate hex identifier, empty when absent
	SHA256  string // package checksum, empty when the shop does not publish one
}

// Installable reports whether the item can be selected and installed.
func (i Item) Installable() bool {
	return i.URL != ""
}

// Section is a titled, ordered group of items.
type Section struct {
	ID    string
	Title string
	Items []Item
}

// Clone returns a copy of the section that shares no item storage.
func (s Section) Clone() Section {
	out := s
	out.Items = append([]Item(nil), s.Items...)
	return out
}

// Catalog is the result of one synchronization cycle.
type Catalog struct {
	Sections []Section
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := Catalog{Sections: make([]Section, 0, len(c.Sections))}
	for _, s := range c.Sections {
		out.Sections = append(out.Sections, s.Clone())
	}
	return out
}

// Section returns the section with the given id.
func (c Catalog) Section(id string) (Section, bool) {
	for _, s := range c.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// WithSection returns a copy of the catalog with the section of the same id
// replaced, or appended when no such section exists.
func (c Catalog) WithSection(section Section) Catalog {
	out := c.Clone()
	for i := range out.Sections {
		if out.Sections[i].ID == section.ID {
			out.Sections[i] = section.Clone()
			return out
		}
	}
	out.Sections = append(out.Sections, section.Clone())
	return out
}

// Prepend returns a copy of the catalog with section inserted first.
func (c Catalog) Prepend(section Section) Catalog {
	out := Catalog{Sections: make([]Section, 0, len(c.Sections)+1)}
	out.Sections = append(out.Sections, section.Clone())
	out.Sections = append(out.Sections, c.Clone().Sections...)
	return out
}

// FindByURL returns the first item in catalog order with the given URL.
func (c Catalog) FindByURL(url string) (Item, bool) {
	if url == "" {
		return Item{}, false
	}
	for _, s := range c.Sections {
		for _, it := range s.Items {
			if it.URL == url {
				return it, true
			}
		}
	}
	return Item{}, false
}

// Empty reports whether the catalog has no sections.
func (c Catalog) Empty() bool {
	return len(c.Sections) == 0
}

// ItemCount returns the number of items across all sections.
func (c Catalog) ItemCount() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Items)
	}
	return n
}
