// Package server exposes the sequencer and storage nodes over gRPC, and adapts the
// generated clients to the node.Source and retriever.NodeClient interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/distributor"
	"github.com/KelvinWu602/blobshard/metastore"
	"github.com/KelvinWu602/blobshard/protos"
	"github.com/KelvinWu602/blobshard/sequencer"
)

// GracePeriod bounds how long Serve waits for open streams when stopping.
const GracePeriod = 5 * time.Second

// Server owns a grpc.Server and its listener.
type Server struct {
	grpcServer *grpc.Server
	logger     *zap.Logger
}

// New creates a server. Services are added with Register before Serve.
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("module", "server"))
	return &Server{
		grpcServer: grpc.NewServer(
			grpc.ChainUnaryInterceptor(unaryLogger(logger)),
			grpc.ChainStreamInterceptor(streamLogger(logger)),
		),
		logger: logger,
	}
}

// Register adds services to the underlying grpc.Server.
func (s *Server) Register(register func(grpc.ServiceRegistrar)) {
	register(s.grpcServer)
}

// Serve accepts connections on lis until ctx ends, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
	}()
	s.logger.Info("gRPC server started", zap.String("address", lis.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("stopping gRPC server")
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(GracePeriod):
			s.logger.Warn("graceful stop timed out, closing open streams")
			s.grpcServer.Stop()
			<-stopped
		}
		if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	}
}

// Stop closes every connection immediately.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		res, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return res, err
	}
}

func streamLogger(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		logger.Debug("stream opened", zap.String("method", info.FullMethod))
		err := handler(srv, ss)
		if err != nil {
			logger.Warn("stream failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return err
	}
}

// SequencerServer serves the delivery stream, node registration and blob metadata.
type SequencerServer struct {
	hub     *distributor.Hub
	roster  *sequencer.Roster
	records interface {
		Record(ctx context.Context, blobName string) (metastore.BlobRecord, error)
	}
	logger *zap.Logger
	protos.UnimplementedSequencerServer
}

func NewSequencerServer(seq *sequencer.Sequencer, logger *zap.Logger) *SequencerServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequencerServer{
		hub:     seq.Hub(),
		roster:  seq.Roster(),
		records: seq,
		logger:  logger.With(zap.String("module", "server")),
	}
}

// Subscribe forwards the deliveries addressed to the requested node, from now on, until
// the client goes away or the hub is closed.
func (s *SequencerServer) Subscribe(req *protos.SubscribeRequest, stream grpc.ServerStreamingServer[protos.BlobChunk]) error {
	nodeID := blueprint.NodeID(req.NodeId)
	sub := s.hub.Subscribe(nodeID)
	defer sub.Close()
	s.logger.Info("node subscribed", zap.Uint32("node", req.NodeId), zap.Stringer("subscription", sub.ID))

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("node unsubscribed", zap.Uint32("node", req.NodeId))
			return nil
		case d, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "sequencer is shutting down")
			}
			err := stream.Send(&protos.BlobChunk{
				NodeId:     uint32(d.NodeID),
				ChunkIndex: d.Index,
				Chunk:      d.Data,
				Name:       d.BlobName,
			})
			if err != nil {
				return err
			}
		}
	}
}

func (s *SequencerServer) NotifyOnline(ctx context.Context, req *protos.NodeOnlineRequest) (*protos.NodeOnlineResponse, error) {
	id := blueprint.NodeID(req.NodeId)
	if id == blueprint.AllNodes {
		return nil, status.Errorf(codes.InvalidArgument, "node id %d is reserved", req.NodeId)
	}
	if s.roster.MarkOnline(id) {
		s.logger.Info("node joined", zap.Uint32("node", req.NodeId))
	}
	return &protos.NodeOnlineResponse{Message: fmt.Sprintf("node %d online", req.NodeId)}, nil
}

func (s *SequencerServer) BlobInfo(ctx context.Context, req *protos.BlobInfoRequest) (*protos.BlobInfoResponse, error) {
	id, err := blueprint.ParseBlobID(req.BlobName)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := s.records.Record(ctx, id.String())
	if errors.Is(err, metastore.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "blob %s not found", id)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &protos.BlobInfoResponse{
		BlobName:       rec.BlobName,
		Root:           rec.Root[:],
		DataShards:     uint32(rec.Params.DataShards),
		ParityShards:   uint32(rec.Params.ParityShards),
		ShardSize:      uint32(rec.Params.ShardSize),
		OriginalLength: uint64(rec.Params.OriginalLength),
		VersionedHash:  rec.VersionedHash[:],
		Hash:           rec.HashName,
	}, nil
}
