// Package metastore keeps one BlobRecord per ingested blob in Badger: the commitment root
// and the coding parameters the reconstruction side needs.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
)

const blobPrefix = "blob/"

// ErrNotFound is returned by Get for an unknown blob.
var ErrNotFound = errors.New("metastore: blob not found")

// BlobRecord is the metadata retained for one blob after its shards are distributed.
type BlobRecord struct {
	BlobName      string            `cbor:"blob_name"`
	VersionedHash [32]byte          `cbor:"versioned_hash"`
	Root          commitment.Digest `cbor:"root"`
	Params        blueprint.Params  `cbor:"params"`
	HashName      string            `cbor:"hash"`
	CreatedAt     time.Time         `cbor:"created_at"`
}

// Options selects where the index lives.
type Options struct {
	// Path is the Badger directory. It is ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *zap.Logger
}

type Store struct {
	db     *badgerdb.DB
	logger *zap.Logger
}

func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("module", "metastore"))

	var bopts badgerdb.Options
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("%w: empty metadata path", blueprint.ErrInvalidParameters)
		}
		if err := os.MkdirAll(opts.Path, 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", opts.Path, err)
		}
		bopts = badgerdb.DefaultOptions(opts.Path)
	}
	// metadata is tiny; keep the caches small
	bopts.BlockCacheSize = 16 << 20
	bopts.IndexCacheSize = 16 << 20
	bopts.NumMemtables = 2
	bopts.Logger = badgerLogger{sugar: logger.Sugar()}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	logger.Info("metadata index opened", zap.String("path", opts.Path), zap.Bool("in_memory", opts.InMemory))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(blobName string) []byte {
	return []byte(blobPrefix + blobName)
}

// Put stores rec, replacing any record for the same blob.
func (s *Store) Put(ctx context.Context, rec BlobRecord) error {
	if err := blueprint.ValidateBlobName(rec.BlobName); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.BlobName, err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(rec.BlobName), val)
	})
}

func (s *Store) Get(ctx context.Context, blobName string) (BlobRecord, error) {
	var rec BlobRecord
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(blobName))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshal(val, &rec)
		})
	})
	if err != nil {
		return BlobRecord{}, fmt.Errorf("loading %s: %w", blobName, err)
	}
	return rec, nil
}

// List returns every record ordered by blob name.
func (s *Store) List(ctx context.Context) ([]BlobRecord, error) {
	var out []BlobRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(blobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec BlobRecord
			if err := it.Item().Value(func(val []byte) error { return unmarshal(val, &rec) }); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record of blobName. Deleting an unknown blob is not an error.
func (s *Store) Delete(ctx context.Context, blobName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key(blobName))
	})
}
