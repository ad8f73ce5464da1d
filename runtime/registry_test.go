package runtime

import (
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"chat-hub/contract"
	"chat-hub/errors"
	"chat-hub/mocks"
	"chat-hub/sink"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegistry_Register_One_User_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug))
	tab1 := sink.NewConnection("alice", 1)
	tab2 := sink.NewConnection("alice", 1)

	// Given no connection is registered
	req.Zero(registry.Len())

	// When the same user opens two tabs
	req.NoError(registry.Register(tab1))
	req.NoError(registry.Register(tab2))

	// Then both are live and mapped to the same user
	req.Equal(2, registry.Len())
	req.Equal(2, registry.ConnectionsForUser("alice"))
	req.ElementsMatch([]contract.LiveConnection{tab1, tab2}, registry.Snapshot())
}

func TestRegistry_Register_Rejects_Duplicate_And_Anonymous(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug))
	conn := sink.NewConnection("alice", 1)

	req.NoError(registry.Register(conn))
	req.ErrorIs(registry.Register(conn), errors.ErrDuplicateConnection)
	req.ErrorIs(registry.Register(sink.NewConnection("", 1)), errors.ErrAnonymousConnection)
	req.Equal(1, registry.Len())
}

func TestRegistry_Unregister_Is_Idempotent_And_Closes(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug))
	conn := sink.NewConnection("alice", 1)
	req.NoError(registry.Register(conn))

	// When the connection is removed twice
	req.True(registry.Unregister(conn.ID()))
	req.False(registry.Unregister(conn.ID()))
	req.False(registry.Unregister("unknown"))

	// Then nothing is left and its sink is closed
	req.Zero(registry.Len())
	req.Zero(registry.ConnectionsForUser("alice"))
	req.ErrorIs(conn.Send(t.Context(), []byte("x")), errors.ErrConnectionClosed)
}

func TestRegistry_Listeners_First_And_Last_For_User(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	listener := mocks.NewMockConnectionListener(ctrl)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug)).AddListener(listener)
	tab1 := sink.NewConnection("alice", 1)
	tab2 := sink.NewConnection("alice", 1)

	gomock.InOrder(
		listener.EXPECT().ConnectionOpened(tab1, true),
		listener.EXPECT().ConnectionOpened(tab2, false),
		listener.EXPECT().ConnectionClosed(tab1, false),
		listener.EXPECT().ConnectionClosed(tab2, true),
	)

	req.NoError(registry.Register(tab1))
	req.NoError(registry.Register(tab2))
	req.True(registry.Unregister(tab1.ID()))
	req.True(registry.Unregister(tab2.ID()))
}

func TestRegistry_ForEach_Prunes_Failed_After_Iteration(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug))
	healthy := sink.NewConnection("alice", 1)
	broken := sink.NewConnection("bob", 1)
	req.NoError(registry.Register(healthy))
	req.NoError(registry.Register(broken))

	visited := 0
	// When one visit fails
	dead := registry.ForEach(func(conn contract.LiveConnection) error {
		visited++
		// Then the registry is not mutated during the iteration
		req.Equal(2, registry.Len())
		if conn.ID() == broken.ID() {
			return errors.ErrDeliveryFailed
		}
		return nil
	})

	// And the failed one is removed afterwards
	req.Equal(2, visited)
	req.Equal([]string{broken.ID()}, dead)
	req.Equal([]contract.LiveConnection{healthy}, registry.Snapshot())
}

// Whatever the interleaving, the live set is registered minus unregistered.
func TestRegistry_Random_Sequences_Match_Model(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		t.Run(fmt.Sprintf("round_%d", round), func(t *testing.T) {
			req := require.New(t)
			registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelError))
			pool := lo.Times(6, func(i int) *sink.Connection {
				return sink.NewConnection(fmt.Sprintf("user-%d", i%3), 1)
			})
			model := map[string]bool{}

			for step := 0; step < 40; step++ {
				conn := pool[rnd.Intn(len(pool))]
				if rnd.Intn(2) == 0 {
					err := registry.Register(conn)
					if model[conn.ID()] {
						req.ErrorIs(err, errors.ErrDuplicateConnection)
					} else {
						req.NoError(err)
					}
					model[conn.ID()] = true
				} else {
					req.Equal(model[conn.ID()], registry.Unregister(conn.ID()))
					delete(model, conn.ID())
				}
			}

			live := lo.Map(registry.Snapshot(), func(c contract.LiveConnection, _ int) string { return c.ID() })
			req.ElementsMatch(lo.Keys(model), live)
			for u := 0; u < 3; u++ {
				userID := fmt.Sprintf("user-%d", u)
				expected := lo.CountBy(pool, func(c *sink.Connection) bool { return c.UserID() == userID && model[c.ID()] })
				req.Equal(expected, registry.ConnectionsForUser(userID))
			}
		})
	}
}
