package server

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/node"
	"github.com/KelvinWu602/blobshard/protos"
)

// StorageNodeServer serves the shards one storage node holds.
type StorageNodeServer struct {
	node   *node.Node
	logger *zap.Logger
	protos.UnimplementedStorageNodeServer
}

func NewStorageNodeServer(n *node.Node, logger *zap.Logger) *StorageNodeServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageNodeServer{node: n, logger: logger.With(zap.String("module", "server"))}
}

// FetchShards streams every shard held for the blob in index order. The stream ends
// when there are no more; a node holding nothing for the blob ends it at once.
func (s *StorageNodeServer) FetchShards(req *protos.FetchShardsRequest, stream grpc.ServerStreamingServer[protos.BlobChunk]) error {
	if err := blueprint.ValidateBlobName(req.BlobName); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	shards, err := s.node.Shards(stream.Context(), req.BlobName)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	for _, shard := range shards {
		err := stream.Send(&protos.BlobChunk{
			NodeId:     uint32(s.node.ID()),
			ChunkIndex: shard.Index,
			Chunk:      shard.Data,
			Name:       req.BlobName,
		})
		if err != nil {
			return err
		}
	}
	s.logger.Debug("served shards", zap.String("blob", req.BlobName), zap.Int("shards", len(shards)))
	return nil
}
