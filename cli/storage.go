package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/config"
	"github.com/KelvinWu602/blobshard/fsstore"
	"github.com/KelvinWu602/blobshard/ipfs"
	"github.com/KelvinWu602/blobshard/rstore"
)

// getShardStore opens the backend a storage node is configured with. The returned
// closer releases it.
func getShardStore(ctx context.Context, cfg config.Node, logger *zap.Logger) (blueprint.ShardStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendFS:
		store, err := fsstore.New(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using filesystem backend", zap.String("dir", store.Dir()))
		return store, noop, nil
	case config.BackendRedis:
		store := rstore.New(cfg.Redis)
		logger.Info("using redis backend", zap.String("addr", cfg.Redis.Addr))
		return store, store.Close, nil
	case config.BackendIPFS:
		store, err := ipfs.New(ctx, cfg.IPFS, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using ipfs backend", zap.String("host", cfg.IPFS.Host), zap.String("root", cfg.IPFS.Root))
		return store, noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", blueprint.ErrInvalidParameters, cfg.Backend)
	}
}
