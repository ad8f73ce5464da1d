package runtime_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/runtime"
	"chat-hub/sink"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newOrchestrator() *runtime.Orchestrator {
	return runtime.NewOrchestrator(logs.GetLoggerFromLevel(slog.LevelDebug), nil,
		func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
		runtime.Config{
			DeliveryTimeout:   50 * time.Millisecond,
			KeepAliveInterval: 10 * time.Millisecond,
			RestartInterval:   10 * time.Millisecond,
		})
}

func next(t *testing.T, conn *sink.Connection) sink.Outbound {
	select {
	case out := <-conn.Queue():
		return out
	case <-time.After(time.Second):
		require.FailNow(t, "nothing queued")
		return sink.Outbound{}
	}
}

func TestOrchestrator_Connect_Acknowledges_Before_Any_Broadcast(t *testing.T) {
	req := require.New(t)
	orchestrator := newOrchestrator()
	bob := sink.NewConnection("bob", 8)
	alice := sink.NewConnection("alice", 8)

	// Given bob is connected
	req.NoError(orchestrator.Connect(context.Background(), bob))
	env, err := event.Decode(next(t, bob).Frame)
	req.NoError(err)
	req.Equal(event.ConnectedTag, env.Type)
	req.JSONEq(`{"userId":"bob"}`, string(env.Data))

	// When alice connects
	req.NoError(orchestrator.Connect(context.Background(), alice))

	// Then alice first receives her handshake ack
	env, err = event.Decode(next(t, alice).Frame)
	req.NoError(err)
	req.Equal(event.ConnectedTag, env.Type)

	// And bob sees alice coming online
	env, err = event.Decode(next(t, bob).Frame)
	req.NoError(err)
	req.Equal(event.PresenceTag, env.Type)
	req.Equal(domain.Online, orchestrator.Presence().Status("alice").Status)
}

func TestOrchestrator_Connect_Fails_On_Closed_Connection(t *testing.T) {
	req := require.New(t)
	orchestrator := newOrchestrator()
	conn := sink.NewConnection("alice", 1)
	conn.Close()

	err := orchestrator.Connect(context.Background(), conn)

	req.ErrorIs(err, errors.ErrConnectionClosed)
	req.Zero(orchestrator.Registry().Len())
}

func TestOrchestrator_Disconnect_Announces_Offline(t *testing.T) {
	req := require.New(t)
	orchestrator := newOrchestrator()
	alice := sink.NewConnection("alice", 8)
	bob := sink.NewConnection("bob", 8)
	req.NoError(orchestrator.Connect(context.Background(), bob))
	req.NoError(orchestrator.Connect(context.Background(), alice))
	next(t, bob) // connected
	next(t, bob) // alice online

	orchestrator.Disconnect(alice.ID())
	orchestrator.Disconnect(alice.ID())

	env, err := event.Decode(next(t, bob).Frame)
	req.NoError(err)
	req.Equal(event.PresenceTag, env.Type)
	req.Equal(domain.Offline, orchestrator.Presence().Status("alice").Status)
	req.Equal(1, orchestrator.Registry().Len())
}

func TestOrchestrator_KeepAlive_Prunes_Stalled_Connection(t *testing.T) {
	req := require.New(t)
	orchestrator := newOrchestrator()
	// Given a connection whose reader never drains its single slot
	stalled := sink.NewConnection("alice", 1)
	req.NoError(orchestrator.Connect(context.Background(), stalled))

	// When the keep-alive worker runs
	orchestrator.Start(context.Background())
	defer orchestrator.Stop()

	// Then the connection is pruned
	req.Eventually(func() bool { return orchestrator.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
	select {
	case <-stalled.Done():
	default:
		req.Fail("pruned connection should be closed")
	}
}

func TestOrchestrator_Stop_Closes_Remaining_Connections(t *testing.T) {
	req := require.New(t)
	orchestrator := newOrchestrator()
	conn := sink.NewConnection("alice", 8)
	req.NoError(orchestrator.Connect(context.Background(), conn))
	orchestrator.Start(context.Background())

	orchestrator.Stop()

	req.Zero(orchestrator.Registry().Len())
	req.ErrorIs(conn.Send(context.Background(), []byte("x")), errors.ErrConnectionClosed)
}
