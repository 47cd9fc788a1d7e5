// pkg/filter/owned.go - hides updates and add-ons the user cannot usefully install.

package filter

import (
	"fmt"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/registry"
)

// Ownership answers "is the base installed, and at which update version"
// for one registry session. Answers are memoized per base identifier.
type Ownership struct {
	titles    registry.Titles
	meta      registry.MetaDB
	installed map[uint64]bool
	versions  map[uint64]uint32
}

// NewOwnership scans the installed bases of an open registry session once.
func NewOwnership(titles registry.Titles, meta registry.MetaDB) *Ownership {
	o := &Ownership{
		titles:    titles,
		meta:      meta,
		installed: make(map[uint64]bool),
		versions:  make(map[uint64]uint32),
	}
	bases, err := registry.InstalledBases(titles)
	if err != nil {
		logging.Warn("Installed base scan incomplete", "error", err, "listed", len(bases))
	}
	for _, id := range bases {
		o.installed[id] = true
	}
	return o
}

// Lookup returns whether the base of item is installed and its installed update version.
func (o *Ownership) Lookup(item catalog.Item) (installed bool, version uint32) {
	base, ok := catalog.DeriveBaseID(item)
	if !ok {
		return false, 0
	}
	return o.lookupBase(base)
}

func (o *Ownership) lookupBase(base uint64) (bool, uint32) {
	known, seen := o.installed[base]
	if seen {
		if v, ok := o.versions[base]; ok {
			return known, v
		}
		if !known {
			return false, 0
		}
	}

	installed := known
	if !seen {
		var err error
		installed, err = o.titles.IsInstalled(base)
		if err != nil {
			logging.Debug("Registry lookup failed", "base", catalog.FormatTitleID(base), "error", err)
			installed = false
		}
	}

	var version uint32
	if installed {
		v, err := o.titles.UpdateVersion(base)
		if err != nil {
			logging.Debug("Update version lookup failed", "base", catalog.FormatTitleID(base), "error", err)
		}
		version = v
		if version == 0 {
			// Content installed outside the registry's own bookkeeping.
			version = registry.LatestPatchVersion(o.meta, base)
		}
	}

	o.installed[base] = installed
	o.versions[base] = version
	return installed, version
}

// Keep reports whether item stays in section sectionID.
func (o *Ownership) Keep(sectionID string, item catalog.Item) bool {
	installed, version := o.Lookup(item)
	if !installed {
		return false
	}
	if sectionID == catalog.SectionUpdates || item.Kind == catalog.KindUpdate {
		v, ok := item.Version.Get()
		return ok && v > version
	}
	return true
}

// DebugLine describes how ownership was decided for item.
func (o *Ownership) DebugLine(item catalog.Item) string {
	base, baseOK := catalog.DeriveBaseID(item)
	installed, version := o.Lookup(item)

	baseText := "-"
	if baseOK {
		baseText = catalog.FormatTitleID(base)
	}
	itemVersion := "-"
	if v, ok := item.Version.Get(); ok {
		itemVersion = fmt.Sprint(v)
	}
	return fmt.Sprintf("base=%s installed=%t installed_ver=%d item_ver=%s kind=%d has_title_id=%t has_app_id=%t",
		baseText, installed, version, itemVersion, item.Kind.Code(), item.TitleID.Set, item.AppID != "")
}

// FilterOwned returns a copy of c in which the "updates" and "dlc" sections only
// keep items whose base is installed; updates must also be newer than the
// installed version. If the registry cannot be opened c is returned unfiltered.
func FilterOwned(c catalog.Catalog, reg registry.Registry, meta registry.MetaDB) catalog.Catalog {
	out := c.Clone()
	if len(out.Sections) == 0 {
		return out
	}

	titles, err := reg.Open()
	if err != nil {
		logging.Warn("Registry unavailable, showing unfiltered catalog", "error", err)
		return out
	}
	defer titles.Close()

	o := NewOwnership(titles, meta)
	for i := range out.Sections {
		section := &out.Sections[i]
		if len(section.Items) == 0 {
			continue
		}
		if section.ID != catalog.SectionUpdates && section.ID != catalog.SectionDLC {
			continue
		}

		kept := make([]catalog.Item, 0, len(section.Items))
		for _, item := range section.Items {
			if o.Keep(section.ID, item) {
				kept = append(kept, item)
			} else {
				logging.Debug("Hiding owned or irrelevant item", "section", section.ID, "item", item.Name, "detail", o.DebugLine(item))
			}
		}
		logging.Debug("Ownership filter applied", "section", section.ID, "before", len(section.Items), "after", len(kept))
		section.Items = kept
	}
	return out
}

// Describe opens a registry session and returns the DebugLine of item.
func Describe(reg registry.Registry, meta registry.MetaDB, item catalog.Item) string {
	titles, err := reg.Open()
	if err != nil {
		return "registry unavailable: " + err.Error()
	}
	defer titles.Close()
	return NewOwnership(titles, meta).DebugLine(item)
}
