// pkg/catalog/identifier.go - derives base-package identifiers for updates and add-ons.

package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// minAppIDDigits is the shortest alternate identifier accepted for derivation.
const minAppIDDigits = 16

// patchBit distinguishes a base identifier from its update identifier.
const patchBit = 0x800

// NormalizeHexID lowercases s and drops every non-hex character.
func NormalizeHexID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeriveBaseID returns the identifier of the base package an item belongs to.
//
// Base items report their numeric identifier as-is. Everything else is
// derived from the alternate hex identifier only: updates clear the low three
// hex digits, add-ons decrement the remaining prefix before clearing them. A
// numeric identifier on an update or add-on may name the item itself, so it is
// never used.
func DeriveBaseID(item Item) (uint64, bool) {
	if item.Kind == KindBase && item.TitleID.Set {
		return item.TitleID.Value, true
	}

	hexID := NormalizeHexID(item.AppID)
	if len(hexID) < minAppIDDigits {
		return 0, false
	}

	var baseHex string
	switch item.Kind {
	case KindUpdate:
		baseHex = hexID[:len(hexID)-3] + "000"
	case KindAddOn:
		prefix := hexID[:len(hexID)-3]
		n, err := strconv.ParseUint(prefix, 16, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		baseHex = fmt.Sprintf("%0*x", len(prefix), n-1) + "000"
	default:
		baseHex = hexID
	}

	id, err := strconv.ParseUint(baseHex, 16, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsBaseItem reports whether the item is itself a base package.
func IsBaseItem(item Item) bool {
	if item.Kind == KindBase {
		return true
	}
	if item.AppID != "" {
		hexID := NormalizeHexID(item.AppID)
		return len(hexID) >= 3 && strings.HasSuffix(hexID, "000")
	}
	if item.TitleID.Set {
		return item.TitleID.Value&0xFFF == 0
	}
	return false
}

// PatchIDForBase returns the update identifier paired with a base identifier.
func PatchIDForBase(base uint64) uint64 {
	return base ^ patchBit
}

// FormatTitleID renders an identifier as 16 uppercase hex digits.
func FormatTitleID(id uint64) string {
	return fmt.Sprintf("%016X", id)
}
