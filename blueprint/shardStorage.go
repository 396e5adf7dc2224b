// The blueprint package defines the shared model of the blobshard storage layer.
// To create a new shard backend for storage nodes, implement the ShardStore interface.
package blueprint

import "context"

// NodeID identifies a storage node. Node ids start from 1; AllNodes is reserved.
type NodeID uint32

// AllNodes is the wildcard node id used by observers that want every delivery.
const AllNodes NodeID = 0

// MaxTotalShards is the largest shard count addressable in GF(2^8).
const MaxTotalShards int = 255

// Shard is one erasure-coded fragment of a blob.
type Shard struct {
	Index uint32
	Data  []byte
}

// Delivery addresses one shard of a blob to one storage node.
type Delivery struct {
	NodeID   NodeID
	Index    uint32
	Data     []byte
	BlobName string
}

// Record is what a storage node persists. It is keyed by (BlobName, NodeID, Index).
type Record struct {
	BlobName string
	NodeID   NodeID
	Index    uint32
	Data     []byte
}

// ShardStore should be implemented by all storage node backends.
// A backend owns its namespace exclusively; Put on an existing key replaces the value atomically.
type ShardStore interface {
	// Put persists a record, overwriting any record with the same key.
	Put(ctx context.Context, rec Record) error
	// Shards returns every shard stored by nodeID for blobName, ordered by index.
	Shards(ctx context.Context, blobName string, nodeID NodeID) ([]Shard, error)
	// DeleteAll removes every record stored by the backend.
	DeleteAll(ctx context.Context) error
}

// EventKind tells a ChainFeed consumer what happened on chain.
type EventKind int

const (
	Committed EventKind = iota
	Reorged
	Reverted
)

func (k EventKind) String() string {
	switch k {
	case Committed:
		return "committed"
	case Reorged:
		return "reorged"
	case Reverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Sidecar is one blob together with its commitment.
type Sidecar struct {
	Commitment BlobID
	Data       []byte
}

// FeedEvent is one notification of the ChainFeed. Blobs is only set for Committed events.
type FeedEvent struct {
	Kind  EventKind
	Blobs []Sidecar
}

// ChainFeed delivers blob transaction events in chain order.
// The channel is closed when the feed ends.
type ChainFeed interface {
	Events() <-chan FeedEvent
}
