// Package fsstore keeps shards as raw files in a single storage directory, one file per
// record, named by blueprint.ChunkFileName.
package fsstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KelvinWu602/blobshard/blueprint"
)

const tmpPattern = ".tmp-chunk-*"

// Store implements blueprint.ShardStore on a directory it owns.
type Store struct {
	dir string
}

// New creates dir when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty storage directory", blueprint.ErrInvalidParameters)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file a record lives in.
func (s *Store) Path(blobName string, nodeID blueprint.NodeID, index uint32) string {
	return filepath.Join(s.dir, blueprint.ChunkFileName(blobName, nodeID, index))
}

// Put writes the shard to a temp file and renames it over the final path, so readers
// never observe a partial file.
func (s *Store) Put(ctx context.Context, rec blueprint.Record) error {
	if err := blueprint.ValidateBlobName(rec.BlobName); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	finalPath := s.Path(rec.BlobName, rec.NodeID, rec.Index)

	tmpFile, err := os.CreateTemp(s.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("creating temp chunk file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(rec.Data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing chunk data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp chunk file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming chunk file to %s: %w", finalPath, err)
	}
	success = true
	return nil
}

func (s *Store) Shards(ctx context.Context, blobName string, nodeID blueprint.NodeID) ([]blueprint.Shard, error) {
	if err := blueprint.ValidateBlobName(blobName); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var shards []blueprint.Shard
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, node, index, ok := blueprint.ParseChunkFileName(entry.Name())
		if !ok || name != blobName || node != nodeID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		shards = append(shards, blueprint.Shard{Index: index, Data: data})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Index < shards[j].Index })
	return shards, nil
}

// DeleteAll removes every chunk file and leftover temp file. The directory itself stays.
func (s *Store) DeleteAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_, _, _, isChunk := blueprint.ParseChunkFileName(entry.Name())
		if !isChunk && !strings.HasPrefix(entry.Name(), ".tmp-chunk-") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}
