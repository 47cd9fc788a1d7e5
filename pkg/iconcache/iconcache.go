// pkg/iconcache/iconcache.go - on-disk cache of catalog item icons.

package iconcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/utils"
)

// FetchTimeout bounds a single icon download.
const FetchTimeout = 8 * time.Second

const defaultExt = ".jpg"

// ErrNoIcon is returned for items without an icon to download.
var ErrNoIcon = errors.New("item has no icon")

// Cache stores icons under Dir, one file per item.
type Cache struct {
	Dir     string
	fetcher *download.Fetcher
}

// New returns an icon cache in dir that downloads through fetcher.
func New(dir string, fetcher *download.Fetcher) *Cache {
	return &Cache{Dir: dir, fetcher: fetcher}
}

// Ext returns the icon file extension taken from the URL path, ".jpg" when
// the path has none or an implausibly long one.
func Ext(iconURL string) string {
	p, _ := catalog.SplitFragment(iconURL)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 5 || strings.Contains(ext, "/") {
		return defaultExt
	}
	return ext
}

// Path returns where the icon of item is stored, "" when the item has no icon
// source. Locally known entries are keyed by identifier, shop entries by a
// hash of the icon URL.
func (c *Cache) Path(item catalog.Item) string {
	if !item.Installable() {
		if id, ok := item.TitleID.Get(); ok {
			return filepath.Join(c.Dir, catalog.FormatTitleID(id)+defaultExt)
		}
	}
	if item.IconURL == "" {
		return ""
	}
	return filepath.Join(c.Dir, utils.SHA256Hex(item.IconURL)+Ext(item.IconURL))
}

// Fetch returns the cached icon path for item, downloading it first when
// missing. A failed download leaves no file behind.
func (c *Cache) Fetch(ctx context.Context, item catalog.Item, creds download.Credentials) (string, error) {
	dest := c.Path(item)
	if dest == "" {
		return "", ErrNoIcon
	}
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}
	if item.IconURL == "" {
		return "", ErrNoIcon
	}
	if c.fetcher == nil {
		return "", errors.New("icon cache has no fetcher")
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()
	if err := c.fetcher.DownloadFile(ctx, item.IconURL, dest, creds, nil); err != nil {
		_ = os.Remove(dest)
		logging.Debug("Icon download failed", "url", item.IconURL, "error", err)
		return "", fmt.Errorf("fetch icon for %s: %w", item.Name, err)
	}
	return dest, nil
}

// PruneStats reports what Prune looked at.
type PruneStats struct {
	Scanned int64
	Removed int64
}

// Prune deletes cached icons older than maxAge.
func (c *Cache) Prune(maxAge time.Duration) (PruneStats, error) {
	var scanned, removed atomic.Int64
	if _, err := os.Stat(c.Dir); errors.Is(err, os.ErrNotExist) {
		return PruneStats{}, nil
	}
	cutoff := time.Now().Add(-maxAge)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, c.Dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		scanned.Add(1)
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err == nil {
				removed.Add(1)
			}
		}
		return nil
	})
	stats := PruneStats{Scanned: scanned.Load(), Removed: removed.Load()}
	if err != nil {
		return stats, fmt.Errorf("prune icon cache: %w", err)
	}
	logging.Debug("Pruned icon cache", "dir", c.Dir, "scanned", stats.Scanned, "removed", stats.Removed)
	return stats, nil
}
