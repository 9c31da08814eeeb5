// Package grpc connects an edge node to the relay and keeps the stream up.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	pb "github.com/dmitrijs2005/clipsync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Session is what runs on top of the stream. *engine.Engine implements it.
type Session interface {
	Connected(ctx context.Context)
	Disconnected(ctx context.Context)
	HandleFrame(ctx context.Context, payload []byte) error
}

const DefaultRetryDelay = 2 * time.Second

type GRPCClient struct {
	endpointURL string
	nodeID      string
	token       string
	logger      logging.Logger
	dialOptions []grpc.DialOption
	RetryDelay  time.Duration

	mu     sync.Mutex
	stream pb.RelayService_ConnectClient
}

// NewGRPCClient prepares a client for the relay at endpointURL. With a token
// the node authenticates with it; otherwise it names itself as nodeID.
func NewGRPCClient(endpointURL, nodeID, token string, l logging.Logger, opts ...grpc.DialOption) *GRPCClient {
	return &GRPCClient{
		endpointURL: endpointURL,
		nodeID:      nodeID,
		token:       token,
		logger:      l.With("module", "grpc_client"),
		dialOptions: opts,
		RetryDelay:  DefaultRetryDelay,
	}
}

func withNodeIdentity(ctx context.Context, nodeID, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.NodeTokenHeaderName)
	md.Delete(common.NodeIDHeaderName)

	if token != "" {
		md.Set(common.NodeTokenHeaderName, token)
	} else {
		md.Set(common.NodeIDHeaderName, nodeID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

// Run keeps a stream to the relay open until ctx is done, reconnecting after
// RetryDelay whenever it drops.
func (c *GRPCClient) Run(ctx context.Context, sess Session) error {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.dialOptions...)
	conn, err := grpc.NewClient(c.endpointURL, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := pb.NewRelayServiceClient(conn)

	for {
		err := c.serve(ctx, client, sess)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Warn(ctx, "relay stream lost", "error", err, "retry_in", c.RetryDelay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.RetryDelay):
		}
	}
}

func (c *GRPCClient) serve(ctx context.Context, client pb.RelayServiceClient, sess Session) error {
	sctx, cancel := context.WithCancel(withNodeIdentity(ctx, c.nodeID, c.token))
	defer cancel()

	stream, err := client.Connect(sctx)
	if err != nil {
		return err
	}

	c.setStream(stream)
	c.logger.Info(ctx, "connected to relay", "endpoint", c.endpointURL)
	sess.Connected(ctx)

	defer func() {
		c.setStream(nil)
		sess.Disconnected(ctx)
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

		if err := sess.HandleFrame(ctx, msg.GetValue()); err != nil {
			c.logger.Warn(ctx, "frame rejected", "error", err)
		}
	}
}

func (c *GRPCClient) setStream(s pb.RelayService_ConnectClient) {
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
}

// Send writes frame on the current stream.
func (c *GRPCClient) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return fmt.Errorf("relay not connected: %w", common.ErrOwnerUnavailable)
	}
	return c.stream.Send(wrapperspb.Bytes(frame))
}

// Connected reports whether a stream is currently open.
func (c *GRPCClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}
