package main

import (
	"context"

	"google.golang.org/grpc"

	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/inbox"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

const (
	serviceName             = "inbox.v1.Inbox"
	methodConnect           = "/" + serviceName + "/Connect"
	methodRaiseNotification = "/" + serviceName + "/RaiseNotification"
	methodIsOnline          = "/" + serviceName + "/IsOnline"
	methodOnlineUsers       = "/" + serviceName + "/OnlineUsers"
)

type IsOnlineRequest struct {
	UserID string `json:"userId"`
}

type IsOnlineResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type OnlineUsersRequest struct{}

type OnlineUsersResponse struct {
	UserIDs []string `json:"userIds"`
	Count   int      `json:"count"`
}

// InboxServer is the gRPC surface. Connect is the client connection;
// the unary methods are the internal API for collaborating services.
type InboxServer interface {
	Connect(InboxConnectServer) error
	RaiseNotification(context.Context, *inbox.NotificationInput) (*data.Notification, error)
	IsOnline(context.Context, *IsOnlineRequest) (*IsOnlineResponse, error)
	OnlineUsers(context.Context, *OnlineUsersRequest) (*OnlineUsersResponse, error)
}

// InboxConnectServer is the server side of a Connect stream.
type InboxConnectServer interface {
	Send(*push.Frame) error
	Recv() (*push.Frame, error)
	grpc.ServerStream
}

type inboxConnectServer struct {
	grpc.ServerStream
}

func (x *inboxConnectServer) Send(f *push.Frame) error { return x.ServerStream.SendMsg(f) }

func (x *inboxConnectServer) Recv() (*push.Frame, error) {
	f := new(push.Frame)
	if err := x.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(InboxServer).Connect(&inboxConnectServer{stream})
}

func raiseNotificationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(inbox.NotificationInput)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InboxServer).RaiseNotification(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRaiseNotification}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InboxServer).RaiseNotification(ctx, req.(*inbox.NotificationInput))
	}
	return interceptor(ctx, in, info, handler)
}

func isOnlineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(IsOnlineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InboxServer).IsOnline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodIsOnline}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InboxServer).IsOnline(ctx, req.(*IsOnlineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func onlineUsersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OnlineUsersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InboxServer).OnlineUsers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodOnlineUsers}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InboxServer).OnlineUsers(ctx, req.(*OnlineUsersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// inboxServiceDesc describes inbox.v1.Inbox for grpc.Server.RegisterService.
var inboxServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InboxServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RaiseNotification", Handler: raiseNotificationHandler},
		{MethodName: "IsOnline", Handler: isOnlineHandler},
		{MethodName: "OnlineUsers", Handler: onlineUsersHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Connect", Handler: connectHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "inbox/v1/inbox.json",
}

// registerService registers the Inbox service on the given gRPC server.
func registerService(s grpc.ServiceRegistrar, srv InboxServer) {
	s.RegisterService(&inboxServiceDesc, srv)
}
