// Package grpc exposes the session controller as the authkeeper.AuthService
// gRPC service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
	"google.golang.org/grpc"
)

// Sessions is the session controller; *users.Service implements it.
type Sessions interface {
	Register(ctx context.Context, username, email, password string) (*models.PublicUser, error)
	Login(ctx context.Context, email, password string) (*users.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	RefreshToken(ctx context.Context, presented string) (*users.TokenPair, error)
}

// Authenticator resolves an access token to a user; *guard.Guard implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.PublicUser, error)
}

type GRPCServer struct {
	address string
	users   Sessions
	guard   Authenticator
	logger  logging.Logger
	metrics *metrics.Metrics
}

var _ pb.AuthServiceServer = (*GRPCServer)(nil)

// NewGRPCServer builds the server. m may be nil.
func NewGRPCServer(a string, l logging.Logger, us Sessions, g Authenticator, m *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		users:   us,
		guard:   g,
		metrics: m,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor))
	pb.RegisterAuthServiceServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
