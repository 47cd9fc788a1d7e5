// pkg/catalog/urls.go - URL resolution and display-name heuristics for catalog entries.

package catalog

import (
	"net/url"
	"strings"
)

func hasHTTPScheme(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// BuildFullURL resolves a catalog path against the normalized shop base URL.
// Absolute URLs pass through, "/"-rooted paths are appended to the base,
// anything else is joined with a separator.
func BuildFullURL(baseURL, path string) string {
	if hasHTTPScheme(path) {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return baseURL + path
	}
	return baseURL + "/" + path
}

// SplitFragment separates "path#fragment" into its two halves.
func SplitFragment(raw string) (path, fragment string) {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

// DecodeSegment percent-decodes a URL segment, returning the input on failure.
func DecodeSegment(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// NameFromURL derives a display name from the last path segment of a URL.
func NameFromURL(raw string) string {
	s := raw
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if strings.HasSuffix(s, ":") {
		// Bare "http:" left over from a host-only URL.
		return ""
	}
	return DecodeSegment(s)
}
