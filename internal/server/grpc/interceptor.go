package grpc

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"github.com/dmitrijs2005/authkeeper/internal/server/guard"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protected lists the methods that require an access token.
var protected = map[string]bool{
	pb.FullMethod(pb.MethodLogout): true,
	pb.FullMethod(pb.MethodMe):     true,
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// accessTokenInterceptor is the guard for gRPC: the token comes from the
// access_token metadata key or a Bearer authorization entry.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if protected[info.FullMethod] {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			accessToken = guard.TokenFromRequest(firstValue(md, common.AccessTokenHeaderName), firstValue(md, "authorization"))
		}

		user, err := s.guard.Authenticate(ctx, accessToken)
		if err != nil {
			return nil, toStatus(err)
		}

		ctx = guard.ContextWithUser(ctx, user)

	}

	return handler(ctx, req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if s.metrics != nil {
		s.metrics.GRPCHandled(info.FullMethod, status.Code(err).String())
	}
	return resp, err
}
