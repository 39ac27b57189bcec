package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"github.com/dmitrijs2005/authkeeper/internal/server/guard"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps a service error to a gRPC status with its user-facing message.
func toStatus(err error) error {
	msg := common.Message(err, users.MsgInternal)
	switch {
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, common.ErrorConflict):
		return status.Error(codes.AlreadyExists, msg)
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

func userValue(u *models.PublicUser) map[string]any {
	working := make([]any, len(u.Working))
	for i, w := range u.Working {
		working[i] = w
	}
	var company any
	if u.CompanyID != nil {
		company = *u.CompanyID
	}
	return map[string]any{
		"_id":       u.ID,
		"username":  u.UserName,
		"email":     u.Email,
		"company":   company,
		"working":   working,
		"createdAt": u.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, users.MsgInternal)
	}
	return out, nil
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	s.logger.Info(ctx, "Registration request")

	user, err := s.users.Register(ctx, pb.String(req, "username"), pb.String(req, "email"), pb.String(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}

	return reply(map[string]any{"user": userValue(user), "message": users.MsgRegistered})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	res, err := s.users.Login(ctx, pb.String(req, "email"), pb.String(req, "password"))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, status.Error(codes.Unauthenticated, users.MsgIncorrectPassword)
		}
		return nil, toStatus(err)
	}

	return reply(map[string]any{
		"user":         userValue(res.User),
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
	})
}

func (s *GRPCServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	user, ok := guard.UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, guard.MsgNoToken)
	}

	if err := s.users.Logout(ctx, user.ID); err != nil {
		return nil, status.Error(codes.Internal, users.MsgLogoutFailed)
	}

	return reply(map[string]any{"message": users.MsgLoggedOut})
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	pair, err := s.users.RefreshToken(ctx, pb.String(req, "refreshToken"))
	if err != nil {
		return nil, toStatus(err)
	}

	return reply(map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	user, ok := guard.UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, guard.MsgNoToken)
	}

	return reply(map[string]any{"user": userValue(user)})
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	return reply(map[string]any{"status": "OK"})

}
