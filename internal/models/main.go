// Package models defines the core data structures shared by the key store,
// the usage fetcher and the HTTP layer.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Raw status tags carried by sentinel snapshots.
const (
	// RawHTTPError marks a snapshot whose request failed at the transport,
	// status or JSON level.
	RawHTTPError = "http_error"
	// RawNoUsage marks a response without a usage document.
	RawNoUsage = "no_usage"
)

// Expiry placeholders.
const (
	ExpiresUnknown = "?"
	ExpiresInvalid = "Invalid key"
)

// Snapshot holds the quota figures of one key at the time of a refresh.
type Snapshot struct {
	// Balance is the display balance. It equals BalanceNum for every
	// snapshot produced by this daemon.
	Balance int64 `json:"balance"`
	// BalanceNum is Total minus Used.
	BalanceNum int64 `json:"balance_numeric"`
	// Total is the allowance of the billing period.
	Total int64 `json:"total"`
	// Used is the consumption including overage.
	Used int64 `json:"used"`
	// Expires is a YYYY-MM-DD date, an opaque upstream string or a placeholder.
	Expires string `json:"expires"`
	// Raw is the status tag; empty for a successful fetch.
	Raw string `json:"raw"`
}

// EmptySnapshot returns the snapshot of a key whose usage is still unknown.
func EmptySnapshot() Snapshot {
	return Snapshot{Expires: ExpiresUnknown}
}

// CacheEntry is one decoded line of the usage cache.
type CacheEntry struct {
	// Index is the 0-based position of the key in the store.
	Index    int
	Snapshot Snapshot
}

// UsageCacheFile is the decoded usage cache.
type UsageCacheFile struct {
	Timestamp time.Time
	// StoreHash is the hex SHA-1 of the store file the cache was built from.
	StoreHash string
	Entries   []CacheEntry
}

// Valid reports whether the cache was built from the store with digest hash.
func (c *UsageCacheFile) Valid(hash string) bool {
	return c != nil && hash != "" && c.StoreHash == hash
}

// Lookup returns the snapshot cached for the 0-based index i.
func (c *UsageCacheFile) Lookup(i int) (Snapshot, bool) {
	if c == nil {
		return Snapshot{}, false
	}
	for _, e := range c.Entries {
		if e.Index == i {
			return e.Snapshot, true
		}
	}
	return Snapshot{}, false
}

// HistoryRecord is a persisted snapshot of one key taken by a refresh cycle.
type HistoryRecord struct {
	// CycleID groups the records written by one refresh.
	CycleID string `json:"cycle_id"`
	// Fingerprint identifies the key without revealing it.
	Fingerprint string    `json:"fingerprint"`
	Position    int       `json:"position"`
	Snapshot    Snapshot  `json:"snapshot"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fingerprint returns a short, non-reversible identifier for key, suitable
// for logs and history rows.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// MaskKey hides most of key for display.
func MaskKey(key string) string {
	if len(key) <= 10 {
		if len(key) < 3 {
			return key + "***"
		}
		return key[:3] + "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
