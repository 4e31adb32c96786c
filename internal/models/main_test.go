package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "fk-***", MaskKey("fk-short"))
	assert.Equal(t, "ab***", MaskKey("ab"))
	assert.Equal(t, "fk-abc...wxyz", MaskKey("fk-abcdefghijklmnopqrstuvwxyz"))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("sk-one")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint("sk-one"))
	assert.NotEqual(t, a, Fingerprint("sk-two"))
	assert.NotContains(t, a, "sk-one")
}

func TestUsageCacheFile(t *testing.T) {
	var nilCache *UsageCacheFile
	assert.False(t, nilCache.Valid("abc"))
	_, ok := nilCache.Lookup(0)
	assert.False(t, ok)

	c := &UsageCacheFile{
		StoreHash: "abc",
		Entries:   []CacheEntry{{Index: 1, Snapshot: Snapshot{Total: 5}}},
	}
	assert.True(t, c.Valid("abc"))
	assert.False(t, c.Valid("def"))
	assert.False(t, c.Valid(""))

	s, ok := c.Lookup(1)
	assert.True(t, ok)
	assert.EqualValues(t, 5, s.Total)
	_, ok = c.Lookup(0)
	assert.False(t, ok)
}
