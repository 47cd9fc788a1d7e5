// pkg/registry/registry.go - installed-package registry and content-metadata contracts.

package registry

import (
	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/logging"
)

// PageSize is the number of base identifiers requested per ListBases call.
const PageSize = 64

// Record is one installed content entry (base, update or add-on).
type Record struct {
	ID      uint64
	BaseID  uint64
	Version uint32
	Kind    catalog.Kind
}

// Registry opens read sessions on the installed-package registry.
// Sessions are opened and closed per logical operation.
type Registry interface {
	Open() (Titles, error)
}

// Titles is an open registry session.
type Titles interface {
	// ListBases returns up to limit installed base identifiers starting at offset.
	ListBases(offset, limit int) ([]uint64, error)
	IsInstalled(base uint64) (bool, error)
	// UpdateVersion returns the installed update version for base, 0 if none is recorded.
	UpdateVersion(base uint64) (uint32, error)
	// ContentMeta returns the installed updates and add-ons of base.
	ContentMeta(base uint64) ([]Record, error)
	Name(id uint64, kind catalog.Kind) string
	Close() error
}

// Storage identifies a content-metadata database.
type Storage int

const (
	StorageBuiltIn Storage = iota
	StorageSD
)

// Storages lists every storage consulted for content metadata.
var Storages = []Storage{StorageBuiltIn, StorageSD}

func (s Storage) String() string {
	switch s {
	case StorageBuiltIn:
		return "builtin"
	case StorageSD:
		return "sd"
	default:
		return "unknown"
	}
}

// MetaKey is the newest content-metadata key recorded for an identifier.
type MetaKey struct {
	ID      uint64
	Version uint32
	Kind    catalog.Kind
}

// MetaDB opens content-metadata databases, one per storage.
type MetaDB interface {
	OpenMeta(storage Storage) (MetaReader, error)
}

// MetaReader is an open content-metadata database.
type MetaReader interface {
	LatestKey(id uint64) (MetaKey, bool, error)
	Close() error
}

// LatestPatchVersion returns the highest update version recorded for base
// across all storages, or 0. Storages that fail to open are skipped.
func LatestPatchVersion(db MetaDB, base uint64) uint32 {
	if db == nil {
		return 0
	}
	patchID := catalog.PatchIDForBase(base)

	var best uint32
	for _, storage := range Storages {
		reader, err := db.OpenMeta(storage)
		if err != nil {
			logging.Debug("Content metadata unavailable", "storage", storage.String(), "error", err)
			continue
		}
		key, ok, err := reader.LatestKey(patchID)
		if err == nil && ok && key.Kind == catalog.KindUpdate && key.ID == patchID && key.Version > best {
			best = key.Version
		}
		if err := reader.Close(); err != nil {
			logging.Debug("Failed to close content metadata", "storage", storage.String(), "error", err)
		}
	}
	return best
}

// InstalledBases pages through the registry and returns every installed base.
func InstalledBases(titles Titles) ([]uint64, error) {
	var bases []uint64
	for offset := 0; ; {
		page, err := titles.ListBases(offset, PageSize)
		if err != nil {
			return bases, err
		}
		if len(page) == 0 {
			return bases, nil
		}
		bases = append(bases, page...)
		offset += len(page)
	}
}

// BuildInstalledSection lists installed bases with their updates and add-ons
// as a locally built "installed" section. Items have no URL and cannot be
// installed. ok is false when the registry is unavailable or empty.
func BuildInstalledSection(reg Registry) (catalog.Section, bool) {
	titles, err := reg.Open()
	if err != nil {
		logging.Warn("Installed-package registry unavailable", "error", err)
		return catalog.Section{}, false
	}
	defer titles.Close()

	bases, err := InstalledBases(titles)
	if err != nil {
		logging.Warn("Failed to list installed packages", "error", err, "listed", len(bases))
	}

	var items []catalog.Item
	for _, base := range bases {
		items = append(items, catalog.Item{
			Name:    titles.Name(base, catalog.KindBase),
			TitleID: catalog.Some(base),
			Kind:    catalog.KindBase,
		})

		records, err := titles.ContentMeta(base)
		if err != nil {
			logging.Debug("Failed to list content metadata", "base", catalog.FormatTitleID(base), "error", err)
			continue
		}
		for _, rec := range records {
			if rec.Kind != catalog.KindUpdate && rec.Kind != catalog.KindAddOn {
				continue
			}
			items = append(items, catalog.Item{
				Name:    titles.Name(rec.ID, rec.Kind),
				TitleID: catalog.Some(rec.ID),
				Version: catalog.Some(rec.Version),
				Kind:    rec.Kind,
			})
		}
	}
	if len(items) == 0 {
		return catalog.Section{}, false
	}

	catalog.SortByName(items)
	return catalog.Section{
		ID:    catalog.SectionInstalled,
		Title: "Installed",
		Items: items,
	}, true
}
