package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
	"github.com/KelvinWu602/blobshard/metastore"
	"github.com/KelvinWu602/blobshard/node"
	"github.com/KelvinWu602/blobshard/protos"
	"github.com/KelvinWu602/blobshard/retriever"
)

func dial(addr string, opts []grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", blueprint.ErrTransport, addr, err)
	}
	return conn, nil
}

func transportError(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	return fmt.Errorf("%w: %w", blueprint.ErrTransport, err)
}

// SequencerClient talks to a sequencer. It implements node.Source.
type SequencerClient struct {
	conn    *grpc.ClientConn
	client  protos.SequencerClient
	timeout time.Duration
}

var _ node.Source = (*SequencerClient)(nil)

// DialSequencer prepares a connection to addr. Unary calls are bounded by timeout.
func DialSequencer(addr string, timeout time.Duration, opts ...grpc.DialOption) (*SequencerClient, error) {
	conn, err := dial(addr, opts)
	if err != nil {
		return nil, err
	}
	return &SequencerClient{conn: conn, client: protos.NewSequencerClient(conn), timeout: timeout}, nil
}

func (c *SequencerClient) Close() error {
	return c.conn.Close()
}

// NotifyOnline announces nodeID to the sequencer roster.
func (c *SequencerClient) NotifyOnline(ctx context.Context, nodeID blueprint.NodeID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.client.NotifyOnline(ctx, &protos.NodeOnlineRequest{NodeId: uint32(nodeID)})
	return transportError(err)
}

// Subscribe announces nodeID, then opens its delivery stream.
func (c *SequencerClient) Subscribe(ctx context.Context, nodeID blueprint.NodeID) (node.Stream, error) {
	if err := c.NotifyOnline(ctx, nodeID); err != nil {
		return nil, err
	}
	stream, err := c.client.Subscribe(ctx, &protos.SubscribeRequest{NodeId: uint32(nodeID)})
	if err != nil {
		return nil, transportError(err)
	}
	return deliveryStream{stream}, nil
}

// BlobInfo fetches what a reconstruction needs to know about blobName.
// CreatedAt is not carried over the wire and is left zero.
func (c *SequencerClient) BlobInfo(ctx context.Context, blobName string) (metastore.BlobRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.client.BlobInfo(ctx, &protos.BlobInfoRequest{BlobName: blobName})
	if err != nil {
		return metastore.BlobRecord{}, transportError(err)
	}
	rec := metastore.BlobRecord{
		BlobName: res.BlobName,
		Params: blueprint.Params{
			DataShards:     int(res.DataShards),
			ParityShards:   int(res.ParityShards),
			ShardSize:      int(res.ShardSize),
			OriginalLength: int(res.OriginalLength),
		},
		HashName: res.Hash,
	}
	if len(res.Root) != commitment.DigestSize || len(res.VersionedHash) != len(rec.VersionedHash) {
		return metastore.BlobRecord{}, fmt.Errorf("%w: malformed blob info for %s", blueprint.ErrTransport, blobName)
	}
	copy(rec.Root[:], res.Root)
	copy(rec.VersionedHash[:], res.VersionedHash)
	return rec, nil
}

type deliveryStream struct {
	stream grpc.ServerStreamingClient[protos.BlobChunk]
}

func (s deliveryStream) Recv() (blueprint.Delivery, error) {
	chunk, err := s.stream.Recv()
	if err != nil {
		return blueprint.Delivery{}, transportError(err)
	}
	return blueprint.Delivery{
		NodeID:   blueprint.NodeID(chunk.NodeId),
		Index:    chunk.ChunkIndex,
		Data:     chunk.Chunk,
		BlobName: chunk.Name,
	}, nil
}

// NodeClient talks to one storage node. It implements retriever.NodeClient.
type NodeClient struct {
	id     blueprint.NodeID
	conn   *grpc.ClientConn
	client protos.StorageNodeClient
}

var _ retriever.NodeClient = (*NodeClient)(nil)

// DialNode prepares a connection to the storage node id at addr. Nothing is sent until
// the first FetchShards, so an unreachable node surfaces there.
func DialNode(id blueprint.NodeID, addr string, opts ...grpc.DialOption) (*NodeClient, error) {
	conn, err := dial(addr, opts)
	if err != nil {
		return nil, err
	}
	return &NodeClient{id: id, conn: conn, client: protos.NewStorageNodeClient(conn)}, nil
}

func (c *NodeClient) ID() blueprint.NodeID {
	return c.id
}

func (c *NodeClient) Close() error {
	return c.conn.Close()
}

func (c *NodeClient) FetchShards(ctx context.Context, blobName string) (retriever.ShardStream, error) {
	stream, err := c.client.FetchShards(ctx, &protos.FetchShardsRequest{BlobName: blobName})
	if err != nil {
		return nil, transportError(err)
	}
	return shardStream{stream}, nil
}

type shardStream struct {
	stream grpc.ServerStreamingClient[protos.BlobChunk]
}

func (s shardStream) Recv() (blueprint.Shard, error) {
	chunk, err := s.stream.Recv()
	if err != nil {
		return blueprint.Shard{}, transportError(err)
	}
	return blueprint.Shard{Index: chunk.ChunkIndex, Data: chunk.Chunk}, nil
}
