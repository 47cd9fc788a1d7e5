// pkg/shop/shop.go - catalog synchronization against a remote shop.

package shop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/windowsadmins/cimianshop/pkg/cache"
	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/config"
	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/filter"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/metrics"
	"github.com/windowsadmins/cimianshop/pkg/registry"
)

// SectionsPath is probed before the flat catalog endpoint.
const SectionsPath = "/api/shop/sections"

// ErrNoURL is returned when no shop URL is configured.
var ErrNoURL = errors.New("shop URL is empty")

// Sync sources reported in logs.
const (
	sourceCache   = "cache"
	sourceStale   = "stale-cache"
	sourceNetwork = "network"
	sourceFlat    = "flat"
)

// Client synchronizes the catalog of one shop.
type Client struct {
	URL   string
	Creds download.Credentials

	fetcher *download.Fetcher
	cache   *cache.Cache
	policy  *bluemonday.Policy
}

// NewClient builds a client from the configuration.
func NewClient(cfg *config.Configuration, m *metrics.Metrics) *Client {
	return &Client{
		URL:     cfg.ShopURL,
		Creds:   download.Credentials{User: cfg.ShopUser, Pass: cfg.ShopPass},
		fetcher: download.NewFetcher(m),
		cache:   cache.New(cfg.CachePath, m),
		policy:  bluemonday.StrictPolicy(),
	}
}

// NewClientWith builds a client on an existing fetcher and cache.
func NewClientWith(url string, creds download.Credentials, fetcher *download.Fetcher, c *cache.Cache) *Client {
	return &Client{URL: url, Creds: creds, fetcher: fetcher, cache: c, policy: bluemonday.StrictPolicy()}
}

// Fetcher returns the HTTP fetcher the client uses.
func (c *Client) Fetcher() *download.Fetcher {
	return c.fetcher
}

// PurgeCache drops the cached catalog of the configured shop, so the next
// Sync has no stale copy to fall back on.
func (c *Client) PurgeCache() {
	base := download.NormalizeURL(c.URL)
	if base == "" || c.cache == nil {
		return
	}
	c.cache.Remove(base)
	logging.Info("Catalog cache purged", "url", base)
}

// Sync returns the shop catalog. With allowCache, a fresh cached copy is
// returned without touching the network, and any fetch, validation or parse
// failure falls back to a cached copy of any age. Only sectioned payloads
// are cached.
func (c *Client) Sync(ctx context.Context, allowCache bool) (catalog.Catalog, error) {
	start := time.Now()
	base := download.NormalizeURL(c.URL)
	if base == "" {
		return catalog.Catalog{}, ErrNoURL
	}
	logging.LogSyncStart(base, allowCache)

	if allowCache {
		if cat, fresh, ok := c.cached(base); ok && fresh {
			logging.LogSyncComplete(base, sourceCache, len(cat.Sections), time.Since(start))
			return cat, nil
		}
	}

	cat, source, body, err := c.fetch(ctx, base)
	if err != nil {
		if allowCache {
			if stale, _, ok := c.cached(base); ok {
				logging.Warn("Serving cached catalog after sync failure", "url", base, "error", err)
				logging.LogSyncComplete(base, sourceStale, len(stale.Sections), time.Since(start))
				return stale, nil
			}
		}
		logging.LogSyncFailed(base, err)
		return catalog.Catalog{}, err
	}

	if body != nil && !cat.Empty() {
		c.cache.Save(base, body)
	}
	logging.LogSyncComplete(base, source, len(cat.Sections), time.Since(start))
	return cat, nil
}

// cached parses the cached sections body for base. ok is false when there is
// no cache entry or it parses to nothing.
func (c *Client) cached(base string) (cat catalog.Catalog, fresh bool, ok bool) {
	if c.cache == nil {
		return catalog.Catalog{}, false, false
	}
	body, fresh, ok := c.cache.Load(base)
	if !ok {
		return catalog.Catalog{}, false, false
	}
	sections, err := catalog.ParseSections(body, base)
	if err != nil || len(sections) == 0 {
		logging.Debug("Cached catalog unusable", "url", base, "error", err)
		return catalog.Catalog{}, false, false
	}
	return catalog.Catalog{Sections: sections}, fresh, true
}

// fetch downloads the sectioned catalog, falling back to the flat endpoint
// when the server does not know the sections path. body is the payload to
// cache, nil when the result must not be cached.
func (c *Client) fetch(ctx context.Context, base string) (cat catalog.Catalog, source string, body []byte, err error) {
	out := c.fetcher.Fetch(ctx, base+SectionsPath, c.Creds)
	if out.Err == nil && out.StatusCode == http.StatusNotFound {
		logging.Debug("Sections endpoint missing, using flat catalog", "url", base)
		items, err := c.fetchFlat(ctx, base)
		if err != nil {
			return catalog.Catalog{}, sourceFlat, nil, err
		}
		if len(items) == 0 {
			return catalog.Catalog{}, sourceFlat, nil, nil
		}
		all := catalog.Section{ID: catalog.SectionAll, Title: "All", Items: items}
		return catalog.Catalog{Sections: []catalog.Section{all}}, sourceFlat, nil, nil
	}

	if err := download.Validate(out); err != nil {
		return catalog.Catalog{}, sourceNetwork, nil, err
	}
	sections, err := catalog.ParseSections(out.Body, base)
	if err != nil {
		return catalog.Catalog{}, sourceNetwork, nil, err
	}
	return catalog.Catalog{Sections: sections}, sourceNetwork, out.Body, nil
}

func (c *Client) fetchFlat(ctx context.Context, base string) ([]catalog.Item, error) {
	out := c.fetcher.Fetch(ctx, base, c.Creds)
	if err := download.Validate(out); err != nil {
		return nil, err
	}
	items, err := catalog.ParseFlat(out.Body, base)
	if err != nil {
		return nil, fmt.Errorf("flat catalog: %w", err)
	}
	return items, nil
}

// MOTD returns the shop's message of the day with markup stripped, or "" when
// the shop has none or cannot be reached.
func (c *Client) MOTD(ctx context.Context) string {
	base := download.NormalizeURL(c.URL)
	if base == "" {
		return ""
	}
	out := c.fetcher.Fetch(ctx, base, c.Creds)
	if out.Err != nil || out.StatusCode == http.StatusUnauthorized || out.StatusCode == http.StatusForbidden {
		return ""
	}
	if bytes.HasPrefix(out.Body, []byte("TINFOIL")) {
		return ""
	}
	msg, ok := catalog.ParseMOTD(out.Body)
	if !ok {
		return ""
	}
	return strings.TrimSpace(c.policy.Sanitize(msg))
}

// Prepared is a synchronized catalog made ready for display.
type Prepared struct {
	Catalog catalog.Catalog
	// AvailableUpdates is the unfiltered updates section, kept for the
	// install-time update offer.
	AvailableUpdates []catalog.Item
}

// Prepare adds the installed section, snapshots the available updates and
// then drops owned or outdated entries from the updates and DLC sections.
func Prepare(cat catalog.Catalog, reg registry.Registry, meta registry.MetaDB) Prepared {
	if reg != nil {
		if installed, ok := registry.BuildInstalledSection(reg); ok {
			cat = cat.Prepend(installed)
		}
	}

	var available []catalog.Item
	if updates, ok := cat.Section(catalog.SectionUpdates); ok {
		available = updates.Clone().Items
	}

	if reg != nil {
		cat = filter.FilterOwned(cat, reg, meta)
	}
	return Prepared{Catalog: cat, AvailableUpdates: available}
}
