// pkg/catalog/parser.go - decodes sectioned and flat shop payloads into catalog sections.

package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ErrParse matches every *ParseError with errors.Is.
var ErrParse = errors.New("catalog parse error")

// ParseError reports a malformed payload or a missing required top-level field.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Numbers are kept as json.Number so 64-bit identifiers survive decoding.
var decoder = sonic.Config{UseNumber: true}.Froze()

func decodeObject(body []byte) (map[string]interface{}, error) {
	var doc interface{}
	if err := decoder.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{Message: "invalid shop response", Err: err}
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, &ParseError{Message: "invalid shop response: top level is not an object"}
	}
	return obj, nil
}

// ParseSections decodes {"sections":[{"id","title","items":[...]}]}.
// Sections without an items array, and sections left empty, are dropped.
func ParseSections(body []byte, baseURL string) ([]Section, error) {
	doc, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	rawSections, ok := doc["sections"].([]interface{})
	if !ok {
		return nil, &ParseError{Message: "shop response missing sections"}
	}

	sections := make([]Section, 0, len(rawSections))
	for _, raw := range rawSections {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		rawItems, ok := obj["items"].([]interface{})
		if !ok {
			continue
		}
		section := Section{
			ID:    stringOr(obj["id"], SectionAll),
			Title: stringOr(obj["title"], "All"),
		}
		for _, rawItem := range rawItems {
			entry, ok := rawItem.(map[string]interface{})
			if !ok {
				continue
			}
			if item, ok := parseItem(entry, baseURL); ok {
				section.Items = append(section.Items, item)
			}
		}
		if len(section.Items) > 0 {
			sections = append(sections, section)
		}
	}
	return sections, nil
}

// ParseFlat decodes the legacy {"files":[...]} payload, sorted by name.
// A server-side "error" field is returned as the ParseError message.
func ParseFlat(body []byte, baseURL string) ([]Item, error) {
	doc, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	if msg, ok := doc["error"]; ok && msg != nil {
		if s, ok := msg.(string); ok {
			return nil, &ParseError{Message: s}
		}
		return nil, &ParseError{Message: fmt.Sprint(msg)}
	}
	files, ok := doc["files"].([]interface{})
	if !ok {
		return nil, &ParseError{Message: "shop response missing file list"}
	}

	items := make([]Item, 0, len(files))
	for _, raw := range files {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if item, ok := parseItem(entry, baseURL); ok {
			items = append(items, item)
		}
	}
	SortByName(items)
	return items, nil
}

// ParseMOTD returns the "success" message of a flat payload, if any.
func ParseMOTD(body []byte) (string, bool) {
	doc, err := decodeObject(body)
	if err != nil {
		return "", false
	}
	s, ok := doc["success"].(string)
	return s, ok
}

// SortByName orders items case-insensitively by display name.
func SortByName(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}

func parseItem(entry map[string]interface{}, baseURL string) (Item, bool) {
	rawURL, ok := entry["url"].(string)
	if !ok || rawURL == "" {
		return Item{}, false
	}
	path, fragment := SplitFragment(rawURL)
	fullURL := BuildFullURL(baseURL, path)

	name, _ := entry["name"].(string)
	if name == "" && fragment != "" {
		name = DecodeSegment(fragment)
	}
	if name == "" {
		name = NameFromURL(fullURL)
	}
	if fullURL == "" || name == "" {
		return Item{}, false
	}

	item := Item{Name: name, URL: fullURL}
	if size, ok := parseUint(entry["size"], 10, 64); ok {
		item.Size = size
	}
	if id, ok := parseTitleID(entry["title_id"]); ok {
		item.TitleID = Some(id)
	}
	if v, ok := parseUint(entry["app_version"], 10, 32); ok {
		item.Version = Some(uint32(v))
	}
	item.Kind = parseKind(entry["app_type"])
	if appID, ok := entry["app_id"].(string); ok {
		item.AppID = appID
	}
	if sum, ok := entry["sha256"].(string); ok {
		item.SHA256 = strings.ToLower(strings.TrimSpace(sum))
	}
	item.IconURL = parseIcon(entry, baseURL)
	return item, true
}

func parseIcon(entry map[string]interface{}, baseURL string) string {
	for _, key := range []string{"icon_url", "iconUrl"} {
		if s, ok := entry[key].(string); ok && s != "" {
			return BuildFullURL(baseURL, s)
		}
	}
	return ""
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// parseUint accepts a JSON number or a numeric string. Negative and
// out-of-range values are rejected.
func parseUint(v interface{}, base, bits int) (uint64, bool) {
	switch val := v.(type) {
	case json.Number:
		if n, err := strconv.ParseUint(val.String(), 10, bits); err == nil {
			return n, true
		}
		f, err := val.Float64()
		if err != nil || f < 0 || f != math.Trunc(f) || f >= math.Pow(2, float64(bits)) {
			return 0, false
		}
		return uint64(f), true
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(val), base, bits)
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		if val < 0 || val != math.Trunc(val) || val >= math.Pow(2, float64(bits)) {
			return 0, false
		}
		return uint64(val), true
	default:
		return 0, false
	}
}

func parseTitleID(v interface{}) (uint64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		return parseUint(s, 16, 64)
	}
	return parseUint(v, 10, 64)
}

func parseKind(v interface{}) Kind {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return KindUnknown
		}
		return KindFromCode(n)
	case float64:
		return KindFromCode(int64(val))
	case string:
		k, _ := ParseKind(val)
		return k
	default:
		return KindUnknown
	}
}
