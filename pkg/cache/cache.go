// pkg/cache/cache.go - on-disk TTL cache of raw catalog bodies, one file per shop.

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/metrics"
	"github.com/windowsadmins/cimianshop/pkg/utils"
)

// TTL is how long a cached catalog is served without contacting the shop.
const TTL = 300 * time.Second

// Cache stores catalog bodies under dir. Every error degrades to a miss.
type Cache struct {
	dir     string
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// New creates a cache rooted at dir. A nil m records into metrics.Default().
func New(dir string, m *metrics.Metrics) *Cache {
	if m == nil {
		m = metrics.Default()
	}
	return &Cache{dir: dir, ttl: TTL, now: time.Now, metrics: m}
}

// SetClock replaces the time source used to compute entry age.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Key returns the cache key for a shop URL: hex SHA256 of the normalized URL.
func Key(url string) string {
	return utils.SHA256Hex(download.NormalizeURL(url))
}

// Path returns the cache file used for url.
func (c *Cache) Path(url string) string {
	return filepath.Join(c.dir, fmt.Sprintf("shop_cache_%s.json.zst", Key(url)))
}

// Load returns the cached body for url and whether it is still fresh.
// ok is false when nothing usable is cached.
func (c *Cache) Load(url string) (body []byte, fresh bool, ok bool) {
	path := c.Path(url)
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Catalog cache unavailable", "path", path, "error", err)
		}
		c.metrics.ObserveCache(metrics.ResultMiss)
		return nil, false, false
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("Failed to read catalog cache", "path", path, "error", err)
		c.metrics.ObserveCache(metrics.ResultMiss)
		return nil, false, false
	}
	body, err = decompress(compressed)
	if err != nil || len(body) == 0 {
		logging.Warn("Discarding unreadable catalog cache", "path", path, "error", err)
		c.metrics.ObserveCache(metrics.ResultMiss)
		return nil, false, false
	}

	// Negative age means the clock moved backwards; never treat that as fresh.
	age := c.now().Sub(info.ModTime())
	fresh = age >= 0 && age <= c.ttl

	result := metrics.ResultStale
	if fresh {
		result = metrics.ResultFresh
	}
	c.metrics.ObserveCache(result)
	logging.LogCacheEvent("hit", Key(url), "fresh", fresh, "age_s", int64(age.Seconds()))
	return body, fresh, true
}

// Save stores body for url. Empty bodies are never cached.
func (c *Cache) Save(url string, body []byte) {
	if len(body) == 0 {
		return
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		logging.Warn("Catalog cache unavailable", "dir", c.dir, "error", err)
		return
	}

	path := c.Path(url)
	data, err := compress(body)
	if err != nil {
		logging.Warn("Catalog cache unavailable", "path", path, "error", err)
		return
	}
	tmp, err := os.CreateTemp(c.dir, ".shop_cache_*")
	if err != nil {
		logging.Warn("Failed to create catalog cache file", "dir", c.dir, "error", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		logging.Warn("Failed to write catalog cache", "path", path, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		logging.Warn("Failed to write catalog cache", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		logging.Warn("Failed to replace catalog cache", "path", path, "error", err)
		return
	}

	c.metrics.ObserveCache(metrics.ResultWrite)
	logging.LogCacheEvent("write", Key(url), "bytes", len(body))
}

// Remove deletes the cached entry for url, if any.
func (c *Cache) Remove(url string) {
	if err := os.Remove(c.Path(url)); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove catalog cache", "url", url, "error", err)
	}
}

var (
	codecOnce  sync.Once
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	codecError error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		var err error
		if encoder, err = zstd.NewWriter(nil); err != nil {
			codecError = fmt.Errorf("create zstd encoder: %w", err)
			return
		}
		if decoder, err = zstd.NewReader(nil); err != nil {
			codecError = fmt.Errorf("create zstd decoder: %w", err)
		}
	})
	return encoder, decoder, codecError
}

func compress(body []byte) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	_, dec, err := codecs()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(data, nil)
}
