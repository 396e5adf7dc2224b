package protos

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Sequencer_Subscribe_FullMethodName     = "/blobshard.Sequencer/Subscribe"
	Sequencer_NotifyOnline_FullMethodName  = "/blobshard.Sequencer/NotifyOnline"
	Sequencer_BlobInfo_FullMethodName      = "/blobshard.Sequencer/BlobInfo"
	StorageNode_FetchShards_FullMethodName = "/blobshard.StorageNode/FetchShards"
)

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// SequencerClient is the client API for the Sequencer service.
type SequencerClient interface {
	// Subscribe streams the shards assigned to a node, live, from the moment of the call.
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[BlobChunk], error)
	// NotifyOnline adds a node to the set shards are assigned to.
	NotifyOnline(ctx context.Context, in *NodeOnlineRequest, opts ...grpc.CallOption) (*NodeOnlineResponse, error)
	// BlobInfo returns the reconstruction parameters and commitment of a blob.
	BlobInfo(ctx context.Context, in *BlobInfoRequest, opts ...grpc.CallOption) (*BlobInfoResponse, error)
}

type sequencerClient struct {
	cc grpc.ClientConnInterface
}

func NewSequencerClient(cc grpc.ClientConnInterface) SequencerClient {
	return &sequencerClient{cc}
}

func (c *sequencerClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[BlobChunk], error) {
	stream, err := c.cc.NewStream(ctx, &Sequencer_ServiceDesc.Streams[0], Sequencer_Subscribe_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeRequest, BlobChunk]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *sequencerClient) NotifyOnline(ctx context.Context, in *NodeOnlineRequest, opts ...grpc.CallOption) (*NodeOnlineResponse, error) {
	out := new(NodeOnlineResponse)
	if err := c.cc.Invoke(ctx, Sequencer_NotifyOnline_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sequencerClient) BlobInfo(ctx context.Context, in *BlobInfoRequest, opts ...grpc.CallOption) (*BlobInfoResponse, error) {
	out := new(BlobInfoResponse)
	if err := c.cc.Invoke(ctx, Sequencer_BlobInfo_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// SequencerServer is the server API for the Sequencer service.
// Implementations must embed UnimplementedSequencerServer.
type SequencerServer interface {
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[BlobChunk]) error
	NotifyOnline(context.Context, *NodeOnlineRequest) (*NodeOnlineResponse, error)
	BlobInfo(context.Context, *BlobInfoRequest) (*BlobInfoResponse, error)
	mustEmbedUnimplementedSequencerServer()
}

type UnimplementedSequencerServer struct{}

func (UnimplementedSequencerServer) Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[BlobChunk]) error {
	return status.Errorf(codes.Unimplemented, "method Subscribe not implemented")
}
func (UnimplementedSequencerServer) NotifyOnline(context.Context, *NodeOnlineRequest) (*NodeOnlineResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method NotifyOnline not implemented")
}
func (UnimplementedSequencerServer) BlobInfo(context.Context, *BlobInfoRequest) (*BlobInfoResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method BlobInfo not implemented")
}
func (UnimplementedSequencerServer) mustEmbedUnimplementedSequencerServer() {}

func RegisterSequencerServer(s grpc.ServiceRegistrar, srv SequencerServer) {
	s.RegisterService(&Sequencer_ServiceDesc, srv)
}

func _Sequencer_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SequencerServer).Subscribe(m, &grpc.GenericServerStream[SubscribeRequest, BlobChunk]{ServerStream: stream})
}

func _Sequencer_NotifyOnline_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NodeOnlineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequencerServer).NotifyOnline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Sequencer_NotifyOnline_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SequencerServer).NotifyOnline(ctx, req.(*NodeOnlineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sequencer_BlobInfo_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BlobInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequencerServer).BlobInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Sequencer_BlobInfo_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SequencerServer).BlobInfo(ctx, req.(*BlobInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var Sequencer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "blobshard.Sequencer",
	HandlerType: (*SequencerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NotifyOnline", Handler: _Sequencer_NotifyOnline_Handler},
		{MethodName: "BlobInfo", Handler: _Sequencer_BlobInfo_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _Sequencer_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "blobshard.proto",
}

// StorageNodeClient is the client API for the StorageNode service.
type StorageNodeClient interface {
	// FetchShards streams every shard the node holds for a blob.
	FetchShards(ctx context.Context, in *FetchShardsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[BlobChunk], error)
}

type storageNodeClient struct {
	cc grpc.ClientConnInterface
}

func NewStorageNodeClient(cc grpc.ClientConnInterface) StorageNodeClient {
	return &storageNodeClient{cc}
}

func (c *storageNodeClient) FetchShards(ctx context.Context, in *FetchShardsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[BlobChunk], error) {
	stream, err := c.cc.NewStream(ctx, &StorageNode_ServiceDesc.Streams[0], StorageNode_FetchShards_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[FetchShardsRequest, BlobChunk]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// StorageNodeServer is the server API for the StorageNode service.
// Implementations must embed UnimplementedStorageNodeServer.
type StorageNodeServer interface {
	FetchShards(*FetchShardsRequest, grpc.ServerStreamingServer[BlobChunk]) error
	mustEmbedUnimplementedStorageNodeServer()
}

type UnimplementedStorageNodeServer struct{}

func (UnimplementedStorageNodeServer) FetchShards(*FetchShardsRequest, grpc.ServerStreamingServer[BlobChunk]) error {
	return status.Errorf(codes.Unimplemented, "method FetchShards not implemented")
}
func (UnimplementedStorageNodeServer) mustEmbedUnimplementedStorageNodeServer() {}

func RegisterStorageNodeServer(s grpc.ServiceRegistrar, srv StorageNodeServer) {
	s.RegisterService(&StorageNode_ServiceDesc, srv)
}

func _StorageNode_FetchShards_Handler(srv any, stream grpc.ServerStream) error {
	m := new(FetchShardsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StorageNodeServer).FetchShards(m, &grpc.GenericServerStream[FetchShardsRequest, BlobChunk]{ServerStream: stream})
}

var StorageNode_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "blobshard.StorageNode",
	HandlerType: (*StorageNodeServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "FetchShards", Handler: _StorageNode_FetchShards_Handler, ServerStreams: true},
	},
	Metadata: "blobshard.proto",
}
