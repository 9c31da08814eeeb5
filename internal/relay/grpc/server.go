// Package grpc exposes the relay to edge nodes over one bidirectional gRPC
// stream per node.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	pb "github.com/dmitrijs2005/clipsync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Handler consumes what nodes send. *hub.Hub implements it.
type Handler interface {
	Register(node string)
	Unregister(ctx context.Context, node string)
	HandleFrame(ctx context.Context, node string, payload []byte) error
}

type nodeStream struct {
	mu     sync.Mutex
	stream pb.RelayService_ConnectServer
}

type GRPCServer struct {
	pb.UnimplementedRelayServiceServer
	address     string
	handler     Handler
	logger      logging.Logger
	jwtSecret   []byte
	stopTimeout time.Duration

	mu      sync.RWMutex
	streams map[string]*nodeStream
}

// NewGRPCServer builds a server on address. With an empty secretKey nodes
// are not authenticated and name themselves in the node_id header.
func NewGRPCServer(address string, l logging.Logger, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:     address,
		logger:      l.With("module", "grpc_server"),
		jwtSecret:   []byte(secretKey),
		stopTimeout: 5 * time.Second,
		streams:     make(map[string]*nodeStream),
	}
}

// SetHandler must be called before Run.
func (s *GRPCServer) SetHandler(h Handler) {
	s.handler = h
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts streams on lis until ctx is done. Streams still open after
// the stop timeout are cut.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	if s.handler == nil {
		return errors.New("grpc server has no handler")
	}

	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.nodeAuthInterceptor))
	pb.RegisterRelayServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")

		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(s.stopTimeout):
			srv.Stop()
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

// Connect serves one node for the lifetime of its stream.
func (s *GRPCServer) Connect(stream pb.RelayService_ConnectServer) error {
	ctx := stream.Context()
	node, ok := NodeIDFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "unknown node")
	}

	ns := &nodeStream{stream: stream}
	s.mu.Lock()
	if _, dup := s.streams[node]; dup {
		s.logger.Warn(ctx, "node reconnected, replacing its stream", "node", node)
	}
	s.streams[node] = ns
	s.mu.Unlock()

	s.handler.Register(node)
	s.logger.Info(ctx, "node connected", "node", node)

	defer func() {
		s.mu.Lock()
		current := s.streams[node] == ns
		if current {
			delete(s.streams, node)
		}
		s.mu.Unlock()

		if current {
			s.handler.Unregister(context.WithoutCancel(ctx), node)
		}
		s.logger.Info(ctx, "node disconnected", "node", node)
	}()

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}

		if err := s.handler.HandleFrame(ctx, node, msg.GetValue()); err != nil {
			s.logger.Warn(ctx, "frame rejected", "node", node, "error", err)
		}
	}
}

// SendTo writes frame on the node's stream. Sends to one node are serialized.
func (s *GRPCServer) SendTo(_ context.Context, node string, frame []byte) error {
	s.mu.RLock()
	ns, ok := s.streams[node]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("node %s not connected: %w", node, common.ErrOwnerUnavailable)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.stream.Send(wrapperspb.Bytes(frame))
}

// Nodes lists the ids of connected nodes.
func (s *GRPCServer) Nodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.streams))
	for n := range s.streams {
		out = append(out, n)
	}
	return out
}
