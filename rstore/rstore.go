// A Redis implementation of the ShardStore interface.
package rstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KelvinWu602/blobshard/blueprint"
)

const keyPrefix = "chunk:"

// Options configures the Redis connection.
type Options struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RSTORE implements blueprint.ShardStore on a Redis keyspace it owns.
type RSTORE struct {
	redisClient *redis.Client
	timeout     time.Duration
}

// New connects to Redis. The connection is established lazily by the client.
func New(opts Options) *RSTORE {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &RSTORE{
		redisClient: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		timeout: opts.Timeout,
	}
}

// Key is the Redis hash holding every shard of blobName stored for nodeID. Fields are
// shard indices. The node id follows the last colon, so distinct pairs never share a key.
func Key(blobName string, nodeID blueprint.NodeID) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, blobName, nodeID)
}

func (r *RSTORE) Put(ctx context.Context, rec blueprint.Record) error {
	if err := blueprint.ValidateBlobName(rec.BlobName); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	// HSET replaces the field in one step
	field := strconv.FormatUint(uint64(rec.Index), 10)
	if err := r.redisClient.HSet(ctx, Key(rec.BlobName, rec.NodeID), field, rec.Data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RSTORE) Shards(ctx context.Context, blobName string, nodeID blueprint.NodeID) ([]blueprint.Shard, error) {
	if err := blueprint.ValidateBlobName(blobName); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields, err := r.redisClient.HGetAll(ctx, Key(blobName, nodeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	shards := make([]blueprint.Shard, 0, len(fields))
	for field, data := range fields {
		index, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			continue
		}
		shards = append(shards, blueprint.Shard{Index: uint32(index), Data: []byte(data)})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Index < shards[j].Index })
	return shards, nil
}

// DeleteAll removes every hash under the store's prefix.
func (r *RSTORE) DeleteAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	iter := r.redisClient.Scan(ctx, 0, keyPrefix+"*", 1000).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RSTORE) Close() error {
	return r.redisClient.Close()
}
