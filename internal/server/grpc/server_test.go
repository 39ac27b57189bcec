package grpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/guard"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	userrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newService(t *testing.T) (*users.Service, *guard.Guard) {
	t.Helper()
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret: "access-secret", RefreshSecret: "refresh-secret",
		AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour,
	}, nil)
	require.NoError(t, err)

	repo := userrepo.NewMemoryRepository()
	hasher := password.NewHasher(password.Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
	log := logging.NewNop()
	return users.NewService(repo, hasher, issuer, log), guard.New(issuer, repo, log)
}

// startBufconn serves srv over an in-memory listener and returns a client
// connection to it.
func startBufconn(t *testing.T, srv *GRPCServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return pb.Invoke(ctx, conn, method, in)
}

func TestSessionFlow(t *testing.T) {
	svc, g := newService(t)
	m := metrics.New()
	conn := startBufconn(t, NewGRPCServer("bufnet", logging.NewNop(), svc, g, m))
	ctx := context.Background()

	out, err := call(t, conn, ctx, pb.MethodRegister, map[string]any{"username": "alice", "email": "a@x.com", "password": "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", pb.String(pb.Object(out, "user"), "email"))

	_, err = call(t, conn, ctx, pb.MethodRegister, map[string]any{"username": "alice", "email": "a@x.com", "password": "secret123"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = call(t, conn, ctx, pb.MethodLogin, map[string]any{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, users.MsgIncorrectPassword, status.Convert(err).Message())

	_, err = call(t, conn, ctx, pb.MethodLogin, map[string]any{"email": "ghost@x.com", "password": "wrong"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	out, err = call(t, conn, ctx, pb.MethodLogin, map[string]any{"email": "a@x.com", "password": "secret123"})
	require.NoError(t, err)
	access := pb.String(out, "accessToken")
	refresh := pb.String(out, "refreshToken")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	authed := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, access)
	out, err = call(t, conn, authed, pb.MethodMe, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", pb.String(pb.Object(out, "user"), "username"))

	bearer := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+access)
	_, err = call(t, conn, bearer, pb.MethodMe, nil)
	require.NoError(t, err)

	out, err = call(t, conn, ctx, pb.MethodRefreshToken, map[string]any{"refreshToken": refresh})
	require.NoError(t, err)
	next := pb.String(out, "refreshToken")
	assert.NotEqual(t, refresh, next)

	_, err = call(t, conn, ctx, pb.MethodRefreshToken, map[string]any{"refreshToken": refresh})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, users.MsgRefreshTokenStale, status.Convert(err).Message())

	_, err = call(t, conn, authed, pb.MethodLogout, nil)
	require.NoError(t, err)

	_, err = call(t, conn, ctx, pb.MethodRefreshToken, map[string]any{"refreshToken": next})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `authkeeper_grpc_requests_total{code="AlreadyExists",method="/authkeeper.AuthService/Register"} 1`)
}

func TestProtectedMethodsNeedToken(t *testing.T) {
	svc, g := newService(t)
	conn := startBufconn(t, NewGRPCServer("bufnet", logging.NewNop(), svc, g, nil))

	for _, m := range []string{pb.MethodMe, pb.MethodLogout} {
		_, err := call(t, conn, context.Background(), m, nil)
		assert.Equal(t, codes.Unauthenticated, status.Code(err), m)
		assert.Equal(t, guard.MsgNoToken, status.Convert(err).Message())
	}

	bad := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "garbage")
	_, err := call(t, conn, bad, pb.MethodMe, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, guard.MsgInvalidToken, status.Convert(err).Message())
}

func TestPing(t *testing.T) {
	svc, g := newService(t)
	conn := startBufconn(t, NewGRPCServer("bufnet", logging.NewNop(), svc, g, nil))

	out, err := call(t, conn, context.Background(), pb.MethodPing, nil)
	require.NoError(t, err)
	assert.Equal(t, "OK", pb.String(out, "status"))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{common.NewError(common.ErrorValidation, "bad"), codes.InvalidArgument, "bad"},
		{common.NewError(common.ErrorConflict, "dup"), codes.AlreadyExists, "dup"},
		{common.NewError(common.ErrorNotFound, "nf"), codes.NotFound, "nf"},
		{common.NewError(common.ErrorUnauthorized, "no"), codes.Unauthenticated, "no"},
		{errors.New("db exploded"), codes.Internal, users.MsgInternal},
	}
	for _, tt := range tests {
		st := status.Convert(toStatus(tt.err))
		assert.Equal(t, tt.code, st.Code())
		assert.Equal(t, tt.msg, st.Message())
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	svc, g := newService(t)
	srv := NewGRPCServer("127.0.0.1:0", logging.NewNop(), svc, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	svc, g := newService(t)
	srv := NewGRPCServer("127.0.0.1:99999", logging.NewNop(), svc, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
