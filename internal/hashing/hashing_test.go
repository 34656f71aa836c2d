package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Hasher construction
func TestNewHasher(t *testing.T) {
	t.Run("accepts sha256", func(t *testing.T) {
		h, err := NewHasher(SHA256)
		require.NoError(t, err)
		assert.Equal(t, SHA256, h.Algorithm())
	})

	t.Run("accepts md5", func(t *testing.T) {
		h, err := NewHasher(MD5)
		require.NoError(t, err)
		assert.Equal(t, MD5, h.Algorithm())
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		_, err := NewHasher("crc32")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported algorithm")
	})
}

// TS02: Text hashing is deterministic and content-only
func TestHashText(t *testing.T) {
	h, err := NewHasher(SHA256)
	require.NoError(t, err)

	// Given the same text hashed twice
	a := h.HashText("the quick brown fox")
	b := h.HashText("the quick brown fox")

	// Then digests match and differ for different text
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, h.HashText("the quick brown ox"))

	// Known sha256 of empty string
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		h.HashText(""))
}

// TS03: Document hashing orders pages numerically
func TestHashDocument(t *testing.T) {
	h, err := NewHasher(SHA256)
	require.NoError(t, err)

	// Given pages inserted out of order
	pages := map[int]string{2: "second", 1: "first", 10: "tenth"}

	// Then the digest equals hashing the ordered join
	want := h.HashText("first\nsecond\ntenth")
	assert.Equal(t, want, h.HashDocument(pages))

	// Empty map hashes the empty string
	assert.Equal(t, h.HashText(""), h.HashDocument(map[int]string{}))
}

// TS04: Chunk set digest
func TestHashChunks(t *testing.T) {
	h, err := NewHasher(SHA256)
	require.NoError(t, err)

	h1 := h.HashText("alpha")
	h2 := h.HashText("beta")

	assert.Equal(t, h.HashText(h1+h2), h.HashChunks([]string{h1, h2}))
	assert.NotEqual(t, h.HashChunks([]string{h1, h2}), h.HashChunks([]string{h2, h1}))
}

// TS05: Change detection
func TestDetectChanged(t *testing.T) {
	prev := []ChunkRef{
		{ID: "chunk-d1-0", Hash: "aaa"},
		{ID: "chunk-d1-1", Hash: "bbb"},
		{ID: "chunk-d1-2", Hash: "ccc"},
	}

	t.Run("no changes", func(t *testing.T) {
		curr := []ChunkRef{
			{ID: "chunk-d1-0", Hash: "aaa"},
			{ID: "chunk-d1-1", Hash: "bbb"},
			{ID: "chunk-d1-2", Hash: "ccc"},
		}
		assert.Empty(t, DetectChanged(prev, curr))
	})

	t.Run("single edit", func(t *testing.T) {
		curr := []ChunkRef{
			{ID: "chunk-d1-0", Hash: "aaa"},
			{ID: "chunk-d1-1", Hash: "MODIFIED"},
			{ID: "chunk-d1-2", Hash: "ccc"},
		}
		changed := DetectChanged(prev, curr)
		require.Len(t, changed, 1)
		assert.Equal(t, "chunk-d1-1", changed[0].ID)
	})

	t.Run("count mismatch marks everything changed", func(t *testing.T) {
		curr := []ChunkRef{
			{ID: "chunk-d1-0", Hash: "aaa"},
			{ID: "chunk-d1-1", Hash: "bbb"},
		}
		changed := DetectChanged(prev, curr)
		assert.Len(t, changed, 2)
	})

	t.Run("empty current", func(t *testing.T) {
		assert.Empty(t, DetectChanged(prev, nil))
	})
}
