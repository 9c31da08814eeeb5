// Package proto holds the gRPC service description of the relay. The stream
// carries google.protobuf.BytesValue, so no generated message types are
// needed; the file mirrors what protoc-gen-go-grpc emits for relay.proto.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	RelayService_Connect_FullMethodName = "/clipsync.relay.RelayService/Connect"
)

type (
	RelayService_ConnectClient = grpc.BidiStreamingClient[wrapperspb.BytesValue, wrapperspb.BytesValue]
	RelayService_ConnectServer = grpc.BidiStreamingServer[wrapperspb.BytesValue, wrapperspb.BytesValue]
)

// RelayServiceClient is the client API for RelayService.
type RelayServiceClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (RelayService_ConnectClient, error)
}

type relayServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRelayServiceClient(cc grpc.ClientConnInterface) RelayServiceClient {
	return &relayServiceClient{cc}
}

func (c *relayServiceClient) Connect(ctx context.Context, opts ...grpc.CallOption) (RelayService_ConnectClient, error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := c.cc.NewStream(ctx, &RelayService_ServiceDesc.Streams[0], RelayService_Connect_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ClientStream: stream}, nil
}

// RelayServiceServer is the server API for RelayService. Implementations
// must embed UnimplementedRelayServiceServer.
type RelayServiceServer interface {
	Connect(RelayService_ConnectServer) error
	mustEmbedUnimplementedRelayServiceServer()
}

type UnimplementedRelayServiceServer struct{}

func (UnimplementedRelayServiceServer) Connect(RelayService_ConnectServer) error {
	return status.Errorf(codes.Unimplemented, "method Connect not implemented")
}
func (UnimplementedRelayServiceServer) mustEmbedUnimplementedRelayServiceServer() {}

func RegisterRelayServiceServer(s grpc.ServiceRegistrar, srv RelayServiceServer) {
	s.RegisterService(&RelayService_ServiceDesc, srv)
}

func _RelayService_Connect_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(RelayServiceServer).Connect(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ServerStream: stream})
}

// RelayService_ServiceDesc is the grpc.ServiceDesc for RelayService.
var RelayService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "clipsync.relay.RelayService",
	HandlerType: (*RelayServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _RelayService_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "relay.proto",
}
