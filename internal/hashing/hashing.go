// Package hashing provides content-addressed hashing for documents and
// chunks. Chunk hashes cover text only, never position, so a chunk that
// moves without changing keeps its hash and is skipped on re-ingest.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// Algorithm identifies a supported hash algorithm.
type Algorithm string

const (
	// SHA256 is the default algorithm.
	SHA256 Algorithm = "sha256"
	// MD5 is supported for compatibility with older catalogs.
	MD5 Algorithm = "md5"
)

// Hasher computes hex digests of text content using a fixed algorithm.
type Hasher struct {
	algo Algorithm
}

// NewHasher creates a Hasher. Unknown algorithms are rejected up front so
// that misconfiguration fails at startup, not mid-ingest.
func NewHasher(algo Algorithm) (*Hasher, error) {
	switch algo {
	case SHA256, MD5:
		return &Hasher{algo: algo}, nil
	default:
		return nil, fmt.Errorf("hashing: unsupported algorithm %q", algo)
	}
}

// Algorithm returns the configured algorithm.
func (h *Hasher) Algorithm() Algorithm { return h.algo }

func (h *Hasher) newHash() hash.Hash {
	if h.algo == MD5 {
		return md5.New()
	}
	return sha256.New()
}

// HashText returns the hex digest of text.
func (h *Hasher) HashText(text string) string {
	hs := h.newHash()
	hs.Write([]byte(text))
	return hex.EncodeToString(hs.Sum(nil))
}

// HashDocument hashes a page map by joining page texts in ascending page
// order with a newline separator. An empty map hashes the empty string.
func (h *Hasher) HashDocument(pages map[int]string) string {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var b strings.Builder
	for i, n := range nums {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pages[n])
	}
	return h.HashText(b.String())
}

// HashChunks derives a document-level digest from ordered chunk hashes by
// concatenating and rehashing.
func (h *Hasher) HashChunks(hashes []string) string {
	return h.HashText(strings.Join(hashes, ""))
}

// ChunkRef pairs a chunk ID with its content hash for change detection.
type ChunkRef struct {
	ID   string
	Hash string
}

// DetectChanged compares two ordered chunk listings and returns the refs
// from current that need re-embedding. A chunk count change invalidates
// positional comparison, so every current chunk is reported as changed.
func DetectChanged(previous, current []ChunkRef) []ChunkRef {
	if len(previous) != len(current) {
		changed := make([]ChunkRef, len(current))
		copy(changed, current)
		return changed
	}

	var changed []ChunkRef
	for i, ref := range current {
		if previous[i].Hash != ref.Hash {
			changed = append(changed, ref)
		}
	}
	return changed
}
