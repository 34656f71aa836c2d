package store

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// indexMetadata is the gob sidecar written next to the vector blob. It
// carries everything needed to interpret the blob: configuration, the
// slot-ordered ID list and the live ID -> slot mapping.
type indexMetadata struct {
	Config IndexConfig
	IDs    []string
	Live   map[string]int
}

// indexBlob is the zstd-compressed payload. Vectors are kept for every
// slot including tombstones so slot numbering stays stable. Graph holds
// the exported HNSW graph and is empty for the flat index.
type indexBlob struct {
	Vectors [][]float32
	Graph   []byte
}

const metaSuffix = ".meta"

// writeSnapshot persists blob and sidecar atomically, temp file plus
// rename for each.
func writeSnapshot(path string, meta indexMetadata, blob indexBlob) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpBlob := path + ".tmp"
	f, err := os.Create(tmpBlob)
	if err != nil {
		return fmt.Errorf("create index blob: %w", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmpBlob)
		return fmt.Errorf("init blob compressor: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(blob); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmpBlob)
		return fmt.Errorf("encode index blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmpBlob)
		return fmt.Errorf("flush blob compressor: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpBlob)
		return fmt.Errorf("close index blob: %w", err)
	}
	if err := os.Rename(tmpBlob, path); err != nil {
		os.Remove(tmpBlob)
		return fmt.Errorf("rename index blob: %w", err)
	}

	metaPath := path + metaSuffix
	tmpMeta := metaPath + ".tmp"
	mf, err := os.Create(tmpMeta)
	if err != nil {
		return fmt.Errorf("create index metadata: %w", err)
	}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(tmpMeta)
		return fmt.Errorf("encode index metadata: %w", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(tmpMeta)
		return fmt.Errorf("close index metadata: %w", err)
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		os.Remove(tmpMeta)
		return fmt.Errorf("rename index metadata: %w", err)
	}
	return nil
}

// readSnapshot loads and validates a persisted index. A missing blob or
// sidecar passes os.ErrNotExist through for errors.Is checks.
func readSnapshot(path string) (indexMetadata, indexBlob, error) {
	var meta indexMetadata
	var blob indexBlob

	mf, err := os.Open(path + metaSuffix)
	if err != nil {
		return meta, blob, fmt.Errorf("open index metadata: %w", err)
	}
	defer mf.Close()
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return meta, blob, fmt.Errorf("%w: decode metadata: %v", ErrCorruptSnapshot, err)
	}

	bf, err := os.Open(path)
	if err != nil {
		return meta, blob, fmt.Errorf("open index blob: %w", err)
	}
	defer bf.Close()
	zr, err := zstd.NewReader(bf)
	if err != nil {
		return meta, blob, fmt.Errorf("%w: init blob decompressor: %v", ErrCorruptSnapshot, err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(&blob); err != nil {
		return meta, blob, fmt.Errorf("%w: decode blob: %v", ErrCorruptSnapshot, err)
	}

	if len(meta.IDs) != len(blob.Vectors) {
		return meta, blob, fmt.Errorf("%w: sidecar lists %d slots, blob holds %d",
			ErrCorruptSnapshot, len(meta.IDs), len(blob.Vectors))
	}
	for id, slot := range meta.Live {
		if slot < 0 || slot >= len(meta.IDs) || meta.IDs[slot] != id {
			return meta, blob, fmt.Errorf("%w: live entry %q points at invalid slot %d",
				ErrCorruptSnapshot, id, slot)
		}
	}
	return meta, blob, nil
}

// ReadIndexDimensions reads the dimensionality from a saved index sidecar
// without loading vectors. Returns 0 when no snapshot exists.
func ReadIndexDimensions(path string) (int, error) {
	f, err := os.Open(path + metaSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open index metadata: %w", err)
	}
	defer f.Close()

	var meta indexMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return 0, fmt.Errorf("%w: decode metadata: %v", ErrCorruptSnapshot, err)
	}
	return meta.Config.Dimensions, nil
}
