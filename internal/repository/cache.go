package repository

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/oroio/internal/models"
)

// FileUsageCache stores the usage snapshots of the last refresh in the line
// format shared with the dk shell tool:
//
//	<unix seconds>
//	<sha1 of keys.enc>
//	<0-based index>\t<base64 of KEY=VALUE lines>
//	...
type FileUsageCache struct {
	path string
}

// NewFileUsageCache returns a cache stored in dir.
func NewFileUsageCache(dir string) *FileUsageCache {
	return &FileUsageCache{path: filepath.Join(dir, CacheFile)}
}

// Path returns the location of the cache file.
func (c *FileUsageCache) Path() string {
	return c.path
}

// Invalidate deletes the cache file. An absent file is not an error.
func (c *FileUsageCache) Invalidate() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove usage cache: %w", err)
	}
	return nil
}

// Write replaces the cache with snapshots, keyed by their position.
func (c *FileUsageCache) Write(storeHash string, snapshots []models.Snapshot, now time.Time) error {
	lines := make([]string, 0, len(snapshots)+2)
	lines = append(lines, strconv.FormatInt(now.Unix(), 10), storeHash)
	for i, s := range snapshots {
		lines = append(lines, fmt.Sprintf("%d\t%s", i, base64.StdEncoding.EncodeToString(encodeSnapshot(s))))
	}
	if err := writeFileAtomic(c.path, []byte(strings.Join(lines, "\n")), FilePermissions); err != nil {
		return fmt.Errorf("write usage cache: %w", err)
	}
	return nil
}

// Read parses the cache file. A missing file yields nil and no error.
// Entries that do not decode are skipped.
func (c *FileUsageCache) Read() (*models.UsageCacheFile, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read usage cache: %w", err)
	}
	return ParseUsageCache(data)
}

// ParseUsageCache decodes the content of a cache file.
func ParseUsageCache(data []byte) (*models.UsageCacheFile, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var header []string
	for len(header) < 2 && sc.Scan() {
		header = append(header, strings.TrimSpace(sc.Text()))
	}
	if len(header) < 2 {
		return nil, errors.New("usage cache: missing header")
	}
	ts, err := strconv.ParseInt(header[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("usage cache: bad timestamp: %w", err)
	}

	out := &models.UsageCacheFile{Timestamp: time.Unix(ts, 0), StoreHash: header[1]}
	for sc.Scan() {
		idxStr, b64, ok := strings.Cut(strings.TrimSpace(sc.Text()), "\t")
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			continue
		}
		out.Entries = append(out.Entries, models.CacheEntry{Index: idx, Snapshot: decodeSnapshot(raw)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("usage cache: %w", err)
	}
	return out, nil
}

func encodeSnapshot(s models.Snapshot) []byte {
	return []byte(strings.Join([]string{
		"BALANCE=" + strconv.FormatInt(s.Balance, 10),
		"BALANCE_NUM=" + strconv.FormatInt(s.BalanceNum, 10),
		"TOTAL=" + strconv.FormatInt(s.Total, 10),
		"USED=" + strconv.FormatInt(s.Used, 10),
		"EXPIRES=" + s.Expires,
		"RAW=" + s.Raw,
	}, "\n"))
}

func decodeSnapshot(raw []byte) models.Snapshot {
	s := models.EmptySnapshot()
	for _, line := range strings.Split(string(raw), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "BALANCE":
			s.Balance = parseNumber(v)
		case "BALANCE_NUM":
			s.BalanceNum = parseNumber(v)
		case "TOTAL":
			s.Total = parseNumber(v)
		case "USED":
			s.Used = parseNumber(v)
		case "EXPIRES":
			if v != "" {
				s.Expires = v
			}
		case "RAW":
			s.Raw = v
		}
	}
	return s
}

// parseNumber accepts integers and the float renderings other writers emit.
func parseNumber(v string) int64 {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	return 0
}
