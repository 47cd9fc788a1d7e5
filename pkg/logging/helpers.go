// pkg/logging/helpers.go - helpers for the recurring sync and install log lines

package logging

import (
	"time"
)

// LogSyncStart logs the start of a catalog synchronization.
func LogSyncStart(shopURL string, allowCache bool) {
	Info("Catalog sync started", "url", shopURL, "allow_cache", allowCache)
}

// LogSyncComplete logs a finished synchronization and where the catalog came from.
func LogSyncComplete(shopURL, source string, sections int, duration time.Duration) {
	Info("Catalog sync completed",
		"url", shopURL,
		"source", source,
		"sections", sections,
		"duration_ms", duration.Milliseconds())
}

// LogSyncFailed logs a synchronization that produced no catalog.
func LogSyncFailed(shopURL string, err error) {
	Error("Catalog sync failed", "url", shopURL, "error", err)
}

// LogCacheEvent logs a cache hit, miss, or write.
func LogCacheEvent(action, key string, keyValues ...interface{}) {
	Debug("Catalog cache "+action, append([]interface{}{"key", key}, keyValues...)...)
}

// LogInstallStart logs the start of a single item installation.
func LogInstallStart(name, url string, index, total int) {
	Info("Install started", "item", name, "url", url, "index", index, "total", total)
}

// LogInstallComplete logs successful completion of a single item.
func LogInstallComplete(name string, duration time.Duration) {
	Info("Install completed", "item", name, "duration_ms", duration.Milliseconds())
}

// LogInstallFailed logs a failed item; the remaining batch is abandoned.
func LogInstallFailed(name string, err error) {
	Error("Install failed", "item", name, "error", err)
}
