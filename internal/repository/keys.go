package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atinyakov/oroio/internal/envelope"
)

// File names inside the data directory.
const (
	KeysFile    = "keys.enc"
	CurrentFile = "current"
	CacheFile   = "list_cache.b64"
)

// FileKeyRepository persists the ordered key list as an encrypted envelope.
// It is the only writer of keys.enc.
type FileKeyRepository struct {
	path  string
	codec envelope.Codec
}

// NewFileKeyRepository returns a repository storing keys.enc in dir.
func NewFileKeyRepository(dir string, codec envelope.Codec) *FileKeyRepository {
	return &FileKeyRepository{path: filepath.Join(dir, KeysFile), codec: codec}
}

// Path returns the location of the store file.
func (r *FileKeyRepository) Path() string {
	return r.path
}

// Load decrypts the store. A missing file is an empty store; any other
// failure is returned so the caller can decide how to degrade.
func (r *FileKeyRepository) Load(ctx context.Context) ([]string, error) {
	blob, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key store: %w", err)
	}
	keys, err := r.codec.Decode(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("decode key store: %w", err)
	}
	return keys, nil
}

// Save encrypts keys and replaces the store file.
func (r *FileKeyRepository) Save(ctx context.Context, keys []string) error {
	blob, err := r.codec.Encode(ctx, keys)
	if err != nil {
		return fmt.Errorf("encode key store: %w", err)
	}
	if err := writeFileAtomic(r.path, blob, FilePermissions); err != nil {
		return fmt.Errorf("write key store: %w", err)
	}
	return nil
}

// Digest returns the hex SHA-1 of the store file, the coherence hash recorded
// in the usage cache. A missing store has an empty digest.
func (r *FileKeyRepository) Digest() (string, error) {
	blob, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read key store: %w", err)
	}
	sum := sha1.Sum(blob)
	return hex.EncodeToString(sum[:]), nil
}
