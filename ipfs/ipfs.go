// An IPFS implementation of the ShardStore interface. Shards are kept as raw files in an
// MFS directory of the local daemon.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// Options configures the daemon connection.
type Options struct {
	// Host is where the daemon RPC API listens, e.g. localhost:5001.
	Host string `yaml:"host"`

	// Root is the MFS directory owned by the store.
	Root string `yaml:"root"`

	// Timeout bounds every call to the daemon.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultOptions mirrors a stock local daemon.
var DefaultOptions = Options{
	Host:    "localhost:5001",
	Root:    "/blobshard",
	Timeout: 2 * time.Second,
}

// IPFS implements blueprint.ShardStore.
type IPFS struct {
	ipfsClient *ipfsClient
	root       string
	logger     *zap.Logger
}

// New waits for the daemon to come up, then creates the root directory.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*IPFS, error) {
	if opts.Host == "" {
		opts.Host = DefaultOptions.Host
	}
	if opts.Root == "" {
		opts.Root = DefaultOptions.Root
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("module", "ipfs"))

	client := newIPFSClient(opts.Host, opts.Timeout)
	if !client.isDaemonAlive(ctx) {
		logger.Info("Failed to connect to IPFS daemon, retrying every 1s", zap.String("host", opts.Host))
		if err := client.waitDaemon(ctx); err != nil {
			return nil, err
		}
	}
	if err := client.createDirectory(ctx, opts.Root); err != nil {
		return nil, fmt.Errorf("creating %s: %w", opts.Root, err)
	}
	return &IPFS{ipfsClient: client, root: opts.Root, logger: logger}, nil
}

func (ipfs *IPFS) chunkPath(blobName string, nodeID blueprint.NodeID, index uint32) string {
	return path.Join(ipfs.root, blueprint.ChunkFileName(blobName, nodeID, index))
}

// Put overwrites the chunk file in place. Writers of the same key must be serialized
// by the caller.
func (ipfs *IPFS) Put(ctx context.Context, rec blueprint.Record) error {
	if err := blueprint.ValidateBlobName(rec.BlobName); err != nil {
		return err
	}
	p := ipfs.chunkPath(rec.BlobName, rec.NodeID, rec.Index)
	if err := ipfs.ipfsClient.writeFile(ctx, p, bytes.NewReader(rec.Data)); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

func (ipfs *IPFS) Shards(ctx context.Context, blobName string, nodeID blueprint.NodeID) ([]blueprint.Shard, error) {
	if err := blueprint.ValidateBlobName(blobName); err != nil {
		return nil, err
	}
	names, err := ipfs.ipfsClient.listDirectory(ctx, ipfs.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", ipfs.root, err)
	}
	var shards []blueprint.Shard
	for _, name := range names {
		blob, node, index, ok := blueprint.ParseChunkFileName(name)
		if !ok || blob != blobName || node != nodeID {
			continue
		}
		data, err := ipfs.ipfsClient.readFile(ctx, path.Join(ipfs.root, name))
		if errors.Is(err, errNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		shards = append(shards, blueprint.Shard{Index: index, Data: data})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Index < shards[j].Index })
	return shards, nil
}

func (ipfs *IPFS) DeleteAll(ctx context.Context) error {
	names, err := ipfs.ipfsClient.listDirectory(ctx, ipfs.root)
	if err != nil {
		return fmt.Errorf("listing %s: %w", ipfs.root, err)
	}
	removed := 0
	for _, name := range names {
		if _, _, _, ok := blueprint.ParseChunkFileName(name); !ok {
			continue
		}
		err := ipfs.ipfsClient.removeFile(ctx, path.Join(ipfs.root, name))
		if err != nil && !errors.Is(err, errNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
		removed++
	}
	ipfs.logger.Info("removed chunk files", zap.Int("count", removed))
	return nil
}
