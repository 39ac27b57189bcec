package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// protected lists the methods sent with the access token and retried once
// after a refresh.
var protected = map[string]bool{
	pb.FullMethod(pb.MethodLogout): true,
	pb.FullMethod(pb.MethodMe):     true,
}

type GRPCClient struct {
	conn  *grpc.ClientConn
	store TokenStore

	mu     sync.Mutex
	tokens Tokens
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) current() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *GRPCClient) setTokens(ctx context.Context, t Tokens) error {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, t)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if !protected[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	tokens := s.current()
	err := invoker(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, opts...)

	if status.Code(err) != codes.Unauthenticated || tokens.RefreshToken == "" {
		return err
	}

	if err := s.refresh(ctx, tokens.RefreshToken); err != nil {
		return err
	}

	// tokens refreshed, retry once with the new access token
	return invoker(withAccessToken(ctx, s.current().AccessToken), method, req, reply, cc, opts...)
}

// NewGRPCClient connects to endpointURL. Tokens saved by an earlier run are
// loaded from store, which may be nil for an in-memory session.
func NewGRPCClient(ctx context.Context, endpointURL string, store TokenStore, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{store: store}

	if store != nil {
		t, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		c.tokens = t
	}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out, err := pb.Invoke(ctx, s.conn, method, in)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *GRPCClient) Register(ctx context.Context, username, email string, password []byte) (*User, error) {

	out, err := s.call(ctx, pb.MethodRegister, map[string]any{
		"username": username,
		"email":    email,
		"password": string(password),
	})
	if err != nil {
		return nil, err
	}

	return userFrom(pb.Object(out, "user")), nil
}

func (s *GRPCClient) Login(ctx context.Context, email string, password []byte) (*User, error) {

	out, err := s.call(ctx, pb.MethodLogin, map[string]any{
		"email":    email,
		"password": string(password),
	})
	if err != nil {
		return nil, err
	}

	t := Tokens{AccessToken: pb.String(out, "accessToken"), RefreshToken: pb.String(out, "refreshToken")}
	if err := s.setTokens(ctx, t); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return userFrom(pb.Object(out, "user")), nil
}

func (s *GRPCClient) Me(ctx context.Context) (*User, error) {
	if s.current() == (Tokens{}) {
		return nil, ErrNotLoggedIn
	}

	out, err := s.call(ctx, pb.MethodMe, nil)
	if err != nil {
		return nil, err
	}
	return userFrom(pb.Object(out, "user")), nil
}

// Refresh rotates the token pair.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	rt := s.current().RefreshToken
	if rt == "" {
		return ErrNotLoggedIn
	}
	return mapError(s.refresh(ctx, rt))
}

// refresh returns gRPC status errors unmapped so the interceptor can hand
// them back to the retried call.
func (s *GRPCClient) refresh(ctx context.Context, refreshToken string) error {
	in, err := structpb.NewStruct(map[string]any{"refreshToken": refreshToken})
	if err != nil {
		return err
	}
	out, err := pb.Invoke(ctx, s.conn, pb.MethodRefreshToken, in)
	if err != nil {
		return err
	}

	t := Tokens{AccessToken: pb.String(out, "accessToken"), RefreshToken: pb.String(out, "refreshToken")}
	if err := s.setTokens(ctx, t); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Logout ends the session on the server and forgets the local tokens even
// when the server call fails.
func (s *GRPCClient) Logout(ctx context.Context) error {
	if s.current() == (Tokens{}) {
		return ErrNotLoggedIn
	}

	_, err := s.call(ctx, pb.MethodLogout, nil)

	s.mu.Lock()
	s.tokens = Tokens{}
	s.mu.Unlock()

	if s.store != nil {
		if cerr := s.store.Clear(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("clear session: %w", cerr)
		}
	}
	return err
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	out, err := s.call(ctx, pb.MethodPing, nil)
	if err != nil {
		return err
	}

	if pb.String(out, "status") != "OK" {
		return ErrUnavailable
	}

	return nil

}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.InvalidArgument, codes.AlreadyExists, codes.NotFound:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func userFrom(s *structpb.Struct) *User {
	if s == nil {
		return nil
	}
	u := &User{
		ID:        pb.String(s, "_id"),
		UserName:  pb.String(s, "username"),
		Email:     pb.String(s, "email"),
		Company:   pb.String(s, "company"),
		CreatedAt: pb.String(s, "createdAt"),
		UpdatedAt: pb.String(s, "updatedAt"),
	}
	for _, v := range s.GetFields()["working"].GetListValue().GetValues() {
		u.Working = append(u.Working, v.GetStringValue())
	}
	return u
}
