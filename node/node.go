// Package node is the storage node: it follows the delivery stream of the sequencer and
// persists the shards addressed to it in a blueprint.ShardStore.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// DefaultBackoff is the pause between a broken subscription and the next attempt.
const DefaultBackoff = time.Second

// Stream yields deliveries until it returns io.EOF or another error.
type Stream interface {
	Recv() (blueprint.Delivery, error)
}

// Source opens a delivery stream filtered to one node.
type Source interface {
	Subscribe(ctx context.Context, nodeID blueprint.NodeID) (Stream, error)
}

var errStreamEnded = errors.New("delivery stream ended")

// Options tunes a Node. The zero value is usable.
type Options struct {
	Backoff time.Duration
	Logger  *zap.Logger
}

// Node persists the shards assigned to one node id.
type Node struct {
	id      blueprint.NodeID
	store   blueprint.ShardStore
	backoff time.Duration
	logger  *zap.Logger
	locks   *keyLock
}

func New(id blueprint.NodeID, store blueprint.ShardStore, opts Options) (*Node, error) {
	if id == blueprint.AllNodes {
		return nil, fmt.Errorf("%w: node id %d is reserved", blueprint.ErrInvalidParameters, id)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil shard store", blueprint.ErrInvalidParameters)
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Node{
		id:      id,
		store:   store,
		backoff: opts.Backoff,
		logger:  opts.Logger.With(zap.String("module", "node"), zap.Uint32("node", uint32(id))),
		locks:   newKeyLock(),
	}, nil
}

// ID returns the node id.
func (n *Node) ID() blueprint.NodeID {
	return n.id
}

// Run subscribes to source and stores every delivery until ctx ends. A failed or
// finished stream is re-opened after the backoff.
func (n *Node) Run(ctx context.Context, source Source) error {
	for {
		stream, err := source.Subscribe(ctx, n.id)
		if err == nil {
			n.logger.Info("subscribed to delivery stream")
			err = n.consume(ctx, stream)
		}
		if ctx.Err() != nil {
			n.logger.Info("gracefully stopped delivery loop")
			return nil
		}
		n.logger.Warn("delivery stream failed, resubscribing", zap.Error(err), zap.Duration("backoff", n.backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(n.backoff):
		}
		resubscribesTotal.Inc()
	}
}

func (n *Node) consume(ctx context.Context, stream Stream) error {
	for {
		d, err := stream.Recv()
		if err == io.EOF {
			return errStreamEnded
		}
		if err != nil {
			return fmt.Errorf("%w: %w", blueprint.ErrTransport, err)
		}
		if err := n.Receive(ctx, d); err != nil {
			// a failed write loses that shard only; the stream stays up
			n.logger.Error("failed to store shard", zap.String("blob", d.BlobName), zap.Uint32("index", d.Index), zap.Error(err))
		}
	}
}

// Receive persists one delivery. Deliveries addressed to other nodes are ignored.
// Concurrent writes of the same (blob, index) are applied one at a time.
func (n *Node) Receive(ctx context.Context, d blueprint.Delivery) error {
	if d.NodeID != n.id {
		n.logger.Debug("ignoring delivery for another node", zap.Uint32("to", uint32(d.NodeID)))
		return nil
	}
	unlock := n.locks.lock(recordKey{blobName: d.BlobName, index: d.Index})
	defer unlock()

	err := n.store.Put(ctx, blueprint.Record{BlobName: d.BlobName, NodeID: n.id, Index: d.Index, Data: d.Data})
	if err != nil {
		storageErrorsTotal.Inc()
		return fmt.Errorf("%w: %w", blueprint.ErrNodeStorage, err)
	}
	storedTotal.Inc()
	n.logger.Debug("stored shard", zap.String("blob", d.BlobName), zap.Uint32("index", d.Index), zap.Int("size", len(d.Data)))
	return nil
}

// Shards returns every shard this node holds for blobName, ordered by index.
func (n *Node) Shards(ctx context.Context, blobName string) ([]blueprint.Shard, error) {
	shards, err := n.store.Shards(ctx, blobName, n.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", blueprint.ErrNodeStorage, err)
	}
	return shards, nil
}

// DeleteAll wipes the backend.
func (n *Node) DeleteAll(ctx context.Context) error {
	if err := n.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: %w", blueprint.ErrNodeStorage, err)
	}
	n.logger.Info("deleted all shards")
	return nil
}
