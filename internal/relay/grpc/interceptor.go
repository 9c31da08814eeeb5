package grpc

import (
	"context"

	"github.com/dmitrijs2005/clipsync/internal/auth"
	"github.com/dmitrijs2005/clipsync/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const NodeIDKey ctxKey = "nodeID"

// NodeIDFromContext returns the node id the interceptor established.
func NodeIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(NodeIDKey).(string)
	return v, ok && v != ""
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) nodeAuthInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	node, err := s.authenticate(ss.Context())
	if err != nil {
		return err
	}

	ctx := context.WithValue(ss.Context(), NodeIDKey, node)
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

func (s *GRPCServer) authenticate(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	if len(s.jwtSecret) == 0 {
		node := first(md, common.NodeIDHeaderName)
		if node == "" {
			return "", status.Error(codes.Unauthenticated, "missing node id")
		}
		return node, nil
	}

	token := first(md, common.NodeTokenHeaderName)
	if token == "" {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}

	node, err := auth.NodeIDFromToken(token, s.jwtSecret)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "invalid token")
	}
	return node, nil
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
