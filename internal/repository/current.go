package repository

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileCurrentRepository persists the 1-based index of the active key as a
// plain decimal number.
type FileCurrentRepository struct {
	path string
}

// NewFileCurrentRepository returns a repository storing the index in dir.
func NewFileCurrentRepository(dir string) *FileCurrentRepository {
	return &FileCurrentRepository{path: filepath.Join(dir, CurrentFile)}
}

// Get returns the persisted index. Missing, unreadable, unparsable or
// non-positive content reads as 1. The value is not checked against the store.
func (r *FileCurrentRepository) Get() int {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return 1
	}
	idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || idx < 1 {
		return 1
	}
	return idx
}

// Set overwrites the persisted index.
func (r *FileCurrentRepository) Set(idx int) error {
	return writeFileAtomic(r.path, []byte(strconv.Itoa(idx)), FilePermissions)
}
