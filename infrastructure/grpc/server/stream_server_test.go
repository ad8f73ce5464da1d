package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"chat-hub/auth"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/infrastructure/grpc/server"
	"chat-hub/runtime"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fixture struct {
	orchestrator *runtime.Orchestrator
	tokens       *auth.Tokens
	client       *grpc.ClientConn
	received     *atomic.Int64
}

// countingConn counts the bytes the client reads off the wire, HTTP/2 control frames included.
type countingConn struct {
	net.Conn
	read *atomic.Int64
}

func (c countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.read.Add(int64(n))
	return n, err
}

func newFixture(t *testing.T) fixture {
	return newFixtureWithKeepAlive(t, time.Minute)
}

func newFixtureWithKeepAlive(t *testing.T, keepAlive time.Duration) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	orchestrator := runtime.NewOrchestrator(log, nil, chat.SystemClock, runtime.Config{DeliveryTimeout: 100 * time.Millisecond})
	tokens := auth.NewTokens("grpc_test_secret_long_enough")

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(server.ServerOptions(tokens, keepAlive)...)
	server.NewStreamServer(log, orchestrator, 16).Register(srv)
	go func() { _ = srv.Serve(lis) }()

	received := new(atomic.Int64)
	client, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			conn, err := lis.DialContext(ctx)
			if err != nil {
				return nil, err
			}
			return countingConn{Conn: conn, read: received}, nil
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(server.Codec{})))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		srv.Stop()
		orchestrator.Stop()
	})
	return fixture{orchestrator: orchestrator, tokens: tokens, client: client, received: received}
}

func (f fixture) connect(t *testing.T, ctx context.Context, userID string) grpc.ClientStream {
	t.Helper()
	if userID != "" {
		token, err := f.tokens.GenerateToken(userID, time.Hour)
		require.NoError(t, err)
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	stream, err := f.client.NewStream(ctx, &server.ServiceDesc.Streams[0], server.ConnectMethod)
	require.NoError(t, err)
	// A rejected stream may already be closed by the server, the status comes with the first receive
	if err := stream.SendMsg(&server.Frame{Data: []byte("{}")}); err != nil {
		require.ErrorIs(t, err, io.EOF)
	}
	require.NoError(t, stream.CloseSend())
	return stream
}

func recv(t *testing.T, stream grpc.ClientStream) event.Envelope {
	t.Helper()
	var frame server.Frame
	require.NoError(t, stream.RecvMsg(&frame))
	env, err := event.Decode(frame.Data)
	require.NoError(t, err)
	return env
}

func TestStreamServer_Delivers_Broadcast_Frames(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given alice subscribed to the stream
	stream := f.connect(t, ctx, "alice")
	env := recv(t, stream)
	req.Equal(event.ConnectedTag, env.Type)
	req.JSONEq(`{"userId":"alice"}`, string(env.Data))

	// When a channel is created somewhere
	f.orchestrator.Broadcaster().Broadcast(context.Background(), event.Channel{Action: event.ChannelDeleted, ChannelID: "general"}, "")

	// Then she receives the exact JSON frame
	env = recv(t, stream)
	req.Equal(event.ChannelTag, env.Type)
	req.JSONEq(`{"action":"deleted","channelId":"general"}`, string(env.Data))

	// When she goes away the connection is unregistered
	cancel()
	req.Eventually(func() bool { return f.orchestrator.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamServer_Requires_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	stream := f.connect(t, context.Background(), "")
	var frame server.Frame
	err := stream.RecvMsg(&frame)

	req.Equal(codes.Unauthenticated, status.Code(err))
	req.Zero(f.orchestrator.Registry().Len())
}

func TestStreamServer_Pings_Idle_Transport(t *testing.T) {
	req := require.New(t)
	// One second is the smallest interval the gRPC server accepts
	f := newFixtureWithKeepAlive(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given alice subscribed and nothing to deliver
	stream := f.connect(t, ctx, "alice")
	req.Equal(event.ConnectedTag, recv(t, stream).Type)
	time.Sleep(100 * time.Millisecond)
	idle := f.received.Load()

	// Then the server still writes to the wire within the keep-alive interval
	req.Eventually(func() bool { return f.received.Load() > idle }, 4*time.Second, 50*time.Millisecond)
	req.Equal(1, f.orchestrator.Registry().Len())
}
