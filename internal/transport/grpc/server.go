// Package grpcx exposes the session manager to operators over gRPC.
//
// The admin API has no generated stubs: requests and responses are protobuf
// well-known types, and the service descriptor is declared by hand below.
package grpcx

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hanyusok/docplus-dev/internal/domain"
	"github.com/hanyusok/docplus-dev/internal/session"
)

const (
	ServiceName = "docplus.session.v1.SessionAdmin"

	methodListRooms = "/" + ServiceName + "/ListRooms"
	methodGetRoom   = "/" + ServiceName + "/GetRoom"
	methodCloseRoom = "/" + ServiceName + "/CloseRoom"
)

type SessionAdminServer interface {
	ListRooms(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetRoom(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	CloseRoom(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

type Server struct {
	rooms *session.Manager
}

func NewServer(rooms *session.Manager) *Server {
	return &Server{rooms: rooms}
}

// Register вешает SessionAdmin и стандартный health на grpc.Server.
func Register(grpcServer *grpc.Server, s *Server) *health.Server {
	grpcServer.RegisterService(&sessionAdminServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

// -------- helpers --------

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrNotInRoom),
		errors.Is(err, domain.ErrNotWaiting),
		errors.Is(err, domain.ErrFeatureDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrManagerClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func summaryValue(rs session.RoomSummary) map[string]any {
	out := map[string]any{
		"id":        rs.ID,
		"active":    rs.Active,
		"waiting":   rs.Waiting,
		"recording": rs.Recording,
		"createdAt": isoTime(rs.CreatedAt),
	}
	if !rs.EmptySince.IsZero() {
		out["emptySince"] = isoTime(rs.EmptySince)
	}
	return out
}

func participantValue(p domain.Participant) map[string]any {
	return map[string]any{
		"userId":        p.UserID,
		"userName":      p.DisplayName,
		"userType":      string(p.Role),
		"joinedAt":      isoTime(p.JoinedAt),
		"muted":         p.Muted,
		"screenSharing": p.ScreenSharing,
	}
}

func snapshotValue(snap domain.RoomSnapshot) map[string]any {
	active := make([]any, 0, len(snap.Active))
	for _, p := range snap.Active {
		active = append(active, participantValue(p))
	}
	waiting := make([]any, 0, len(snap.Waiting))
	for i, e := range snap.Waiting {
		v := participantValue(e.Participant)
		v["position"] = i + 1
		v["status"] = string(e.Status)
		v["priority"] = e.Priority
		v["joinedAt"] = isoTime(e.JoinedAt)
		waiting = append(waiting, v)
	}
	return map[string]any{
		"id":        snap.ID,
		"recording": snap.Recording,
		"createdAt": isoTime(snap.CreatedAt),
		"settings": map[string]any{
			"maxParticipants":    snap.Settings.MaxParticipants,
			"allowChat":          snap.Settings.AllowChat,
			"allowScreenSharing": snap.Settings.AllowScreenSharing,
			"allowRecording":     snap.Settings.AllowRecording,
			"waitingRoomEnabled": snap.Settings.WaitingRoomEnabled,
		},
		"participants": active,
		"waiting":      waiting,
	}
}

// -------- methods --------

func (s *Server) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	rooms := s.rooms.Rooms()
	items := make([]any, 0, len(rooms))
	for _, rs := range rooms {
		items = append(items, summaryValue(rs))
	}
	out, err := structpb.NewList(items)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Server) GetRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "room id is required")
	}
	snap, err := s.rooms.Snapshot(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := structpb.NewStruct(snapshotValue(snap))
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Server) CloseRoom(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "room id is required")
	}
	if err := s.rooms.CloseRoom(in.GetValue()); err != nil {
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

// -------- service descriptor --------

var sessionAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRooms", Handler: listRoomsHandler},
		{MethodName: "GetRoom", Handler: getRoomHandler},
		{MethodName: "CloseRoom", Handler: closeRoomHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docplus/session/v1/admin.proto",
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionAdminServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListRooms}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SessionAdminServer).ListRooms(ctx, req.(*emptypb.Empty))
	})
}

func getRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionAdminServer).GetRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetRoom}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SessionAdminServer).GetRoom(ctx, req.(*wrapperspb.StringValue))
	})
}

func closeRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionAdminServer).CloseRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCloseRoom}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SessionAdminServer).CloseRoom(ctx, req.(*wrapperspb.StringValue))
	})
}
