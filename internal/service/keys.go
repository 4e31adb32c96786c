// Package service implements the key lifecycle on top of the repositories:
// listing, adding, removing and selecting keys, keeping the usage cache
// coherent with the store and refreshing it.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/models"
)

// KeyRepository persists the ordered key list.
type KeyRepository interface {
	// Load returns the stored keys; a missing store is empty, not an error.
	Load(ctx context.Context) ([]string, error)
	// Save replaces the store with keys.
	Save(ctx context.Context, keys []string) error
	// Digest returns the coherence hash of the stored file.
	Digest() (string, error)
}

// CurrentRepository persists the 1-based index of the active key.
type CurrentRepository interface {
	Get() int
	Set(idx int) error
}

// UsageCache holds the snapshots of the last refresh.
type UsageCache interface {
	Invalidate() error
	Write(storeHash string, snapshots []models.Snapshot, now time.Time) error
	Read() (*models.UsageCacheFile, error)
}

// UsageFetcher queries usage for every key, preserving order.
type UsageFetcher interface {
	FetchAll(ctx context.Context, keys []string) []models.Snapshot
}

// HistoryRepository records snapshots across refreshes.
type HistoryRepository interface {
	AppendSnapshots(ctx context.Context, records []models.HistoryRecord) error
	ListByFingerprint(ctx context.Context, fingerprint string, limit int) ([]models.HistoryRecord, error)
}

// Option configures a KeyService.
type Option func(*KeyService)

// WithHistory records every refresh in h.
func WithHistory(h HistoryRepository) Option {
	return func(s *KeyService) { s.history = h }
}

// WithClock overrides the time source used for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *KeyService) { s.now = now }
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// KeyService implements the key lifecycle. Mutations are serialised; every
// mutation is a full load, modify, save cycle.
type KeyService struct {
	keys    KeyRepository
	current CurrentRepository
	cache   UsageCache
	fetcher UsageFetcher
	history HistoryRepository
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewKeyService wires the service to its repositories.
func NewKeyService(
	keys KeyRepository,
	current CurrentRepository,
	cache UsageCache,
	fetcher UsageFetcher,
	log *zap.Logger,
	opts ...Option,
) *KeyService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &KeyService{
		keys:    keys,
		current: current,
		cache:   cache,
		fetcher: fetcher,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the stored keys. An unreadable store is reported as empty:
// the daemon stays available and behaves as if no keys exist.
func (s *KeyService) List(ctx context.Context) []string {
	keys, err := s.keys.Load(ctx)
	if err != nil {
		s.log.Warn("key store unreadable, treating as empty", zap.Error(err))
		return []string{}
	}
	return keys
}

// Add appends key to the store and returns the new key count.
func (s *KeyService) Add(ctx context.Context, key string) (int, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := append(s.List(ctx), key)
	if err := s.keys.Save(ctx, keys); err != nil {
		return 0, err
	}
	s.invalidate()
	s.log.Info("key added", zap.String("key", models.Fingerprint(key)), zap.Int("count", len(keys)))
	return len(keys), nil
}

// RemoveAt deletes the key at the 1-based idx, resets the selection to the
// first key and returns the remaining count.
func (s *KeyService) RemoveAt(ctx context.Context, idx int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.List(ctx)
	if err := checkRange(idx, len(keys)); err != nil {
		return 0, err
	}
	removed := keys[idx-1]
	keys = append(keys[:idx-1], keys[idx:]...)
	if err := s.keys.Save(ctx, keys); err != nil {
		return 0, err
	}
	if err := s.current.Set(1); err != nil {
		return 0, fmt.Errorf("reset current key: %w", err)
	}
	s.invalidate()
	s.log.Info("key removed", zap.String("key", models.Fingerprint(removed)), zap.Int("count", len(keys)))
	return len(keys), nil
}

// SelectAt makes the key at the 1-based idx the current one. The usage
// cache is left alone: selection does not change any balance.
func (s *KeyService) SelectAt(ctx context.Context, idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkRange(idx, len(s.List(ctx))); err != nil {
		return err
	}
	if err := s.current.Set(idx); err != nil {
		return fmt.Errorf("persist current key: %w", err)
	}
	s.log.Info("current key selected", zap.Int("index", idx))
	return nil
}

// Current returns the 1-based index of the active key clamped to the store:
// 0 for an empty store and 1 when the persisted index no longer exists.
func (s *KeyService) Current(ctx context.Context) int {
	return clampCurrent(s.current.Get(), len(s.List(ctx)))
}

// CurrentKey returns the active key and its index.
func (s *KeyService) CurrentKey(ctx context.Context) (int, string, bool) {
	keys := s.List(ctx)
	idx := clampCurrent(s.current.Get(), len(keys))
	if idx == 0 {
		return 0, "", false
	}
	return idx, keys[idx-1], true
}

func clampCurrent(idx, n int) int {
	switch {
	case n == 0:
		return 0
	case idx > n:
		return 1
	default:
		return idx
	}
}

// Refresh fetches usage for every key and rewrites the usage cache. With no
// keys it returns immediately without any network traffic.
func (s *KeyService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.List(ctx)
	if len(keys) == 0 {
		return nil
	}

	cycleID := uuid.NewString()
	started := s.now()
	snapshots := s.fetcher.FetchAll(ctx, keys)

	hash, err := s.keys.Digest()
	if err != nil {
		return err
	}
	if err := s.cache.Write(hash, snapshots, s.now()); err != nil {
		return err
	}

	failed := 0
	for _, snap := range snapshots {
		if snap.Raw == models.RawHTTPError {
			failed++
		}
	}
	s.log.Info("usage refreshed",
		zap.String("cycle", cycleID),
		zap.Int("keys", len(keys)),
		zap.Int("failed", failed),
		zap.Duration("took", s.now().Sub(started)),
	)

	s.record(ctx, cycleID, keys, snapshots, started)
	return nil
}

// record appends the refresh to the history. Failures only get logged.
func (s *KeyService) record(ctx context.Context, cycleID string, keys []string, snapshots []models.Snapshot, at time.Time) {
	if s.history == nil {
		return
	}
	records := make([]models.HistoryRecord, len(keys))
	for i, k := range keys {
		records[i] = models.HistoryRecord{
			CycleID:     cycleID,
			Fingerprint: models.Fingerprint(k),
			Position:    i,
			Snapshot:    snapshots[i],
			FetchedAt:   at.UTC(),
		}
	}
	if err := s.history.AppendSnapshots(ctx, records); err != nil {
		s.log.Warn("failed to record usage history", zap.String("cycle", cycleID), zap.Error(err))
	}
}

// Usage returns the cached snapshots and whether they belong to the current store.
func (s *KeyService) Usage() (*models.UsageCacheFile, bool, error) {
	cache, err := s.cache.Read()
	if err != nil {
		return nil, false, err
	}
	hash, err := s.keys.Digest()
	if err != nil {
		return cache, false, err
	}
	return cache, cache.Valid(hash), nil
}

// Status summarises the store for the UI.
type Status struct {
	Count      int  `json:"count"`
	Current    int  `json:"current"`
	CacheValid bool `json:"cache_valid"`
}

// Status reports the key count, the clamped current index and whether the
// usage cache matches the store.
func (s *KeyService) Status(ctx context.Context) Status {
	n := len(s.List(ctx))
	st := Status{Count: n, Current: clampCurrent(s.current.Get(), n)}
	if _, valid, err := s.Usage(); err == nil {
		st.CacheValid = valid
	}
	return st
}

// History returns up to limit recorded snapshots of the key at the 1-based idx.
func (s *KeyService) History(ctx context.Context, idx, limit int) ([]models.HistoryRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	keys := s.List(ctx)
	if err := checkRange(idx, len(keys)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	return s.history.ListByFingerprint(ctx, models.Fingerprint(keys[idx-1]), limit)
}

func (s *KeyService) invalidate() {
	if err := s.cache.Invalidate(); err != nil {
		s.log.Warn("failed to invalidate usage cache", zap.Error(err))
	}
}

func checkRange(idx, n int) error {
	if idx < 1 || idx > n {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrRange, idx, n)
	}
	return nil
}
