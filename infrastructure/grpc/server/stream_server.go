package server

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/errors"
	"chat-hub/sink"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const defaultKeepAliveInterval = 30 * time.Second

type Connector interface {
	Connect(ctx context.Context, conn contract.LiveConnection) error
	Disconnect(connectionID string)
}

type EventStreamServer interface {
	Connect(req *Frame, stream grpc.ServerStream) error
}

// ServiceDesc describes chathub.v1.EventStream, a single server-streaming method.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "chathub.v1.EventStream",
	HandlerType: (*EventStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chathub/v1/event_stream.proto",
}

const ConnectMethod = "/chathub.v1.EventStream/Connect"

func connectHandler(srv any, stream grpc.ServerStream) error {
	req := new(Frame)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(EventStreamServer).Connect(req, stream)
}

type StreamServer struct {
	log        *slog.Logger
	connector  Connector
	bufferSize int
}

func NewStreamServer(log *slog.Logger, connector Connector, bufferSize int) *StreamServer {
	return &StreamServer{log: log, connector: connector, bufferSize: bufferSize}
}

// ServerOptions wires the frame codec, the JWT interceptors and transport keep-alive.
// An idle transport is pinged every keepAliveInterval and dropped when the ping
// goes unanswered for as long, which ends its streams and unregisters them.
func ServerOptions(tokens *auth.Tokens, keepAliveInterval time.Duration) []grpc.ServerOption {
	if keepAliveInterval <= 0 {
		keepAliveInterval = defaultKeepAliveInterval
	}
	return []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: keepAliveInterval, Timeout: keepAliveInterval}),
		grpc.ChainUnaryInterceptor(tokens.UnaryInterceptor),
		grpc.ChainStreamInterceptor(tokens.StreamInterceptor),
	}
}

func (s *StreamServer) Register(server *grpc.Server) {
	server.RegisterService(&ServiceDesc, s)
}

// Connect establishes a long-lived stream for real-time delivery.
// The request body is ignored. The call blocks until the client goes away or the
// connection is pruned; unregistration is deferred so the registry never leaks it.
func (s *StreamServer) Connect(_ *Frame, stream grpc.ServerStream) error {
	ctx := stream.Context()
	userID, ok := auth.UserID(ctx)
	if !ok {
		return errors.MapToGRPCError(errors.ErrUnauthenticated)
	}
	conn := sink.NewConnection(userID, s.bufferSize)
	if err := s.connector.Connect(ctx, conn); err != nil {
		conn.Close()
		return errors.MapToGRPCError(err)
	}
	defer s.connector.Disconnect(conn.ID())

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Stream client went away", "connection_id", conn.ID(), "user_id", userID)
			return nil
		case <-conn.Done():
			return nil
		case out := <-conn.Queue():
			if out.Ping {
				// The wire liveness signal is the HTTP/2 ping of the keep-alive params
				continue
			}
			if err := stream.SendMsg(&Frame{Data: out.Frame}); err != nil {
				s.log.Error("failed to push event to stream", "user_id", userID, "connection_id", conn.ID(), "error", err)
				return err
			}
		}
	}
}
