package runtime

import (
	"log/slog"
	"sync"

	"chat-hub/contract"
	"chat-hub/errors"
)

// Registry tracks the live connections of the process, independent of their transport.
// Connections are keyed by their own identity; a user may own many of them.
type Registry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	connections map[string]contract.LiveConnection // map connection -> live sink
	perUser     map[string]int                     // map user -> number of connections
	listeners   []contract.ConnectionListener
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:         log,
		connections: make(map[string]contract.LiveConnection),
		perUser:     make(map[string]int),
	}
}

// AddListener must be called before the registry is shared.
func (r *Registry) AddListener(listeners ...contract.ConnectionListener) *Registry {
	r.listeners = append(r.listeners, listeners...)
	return r
}

// Register adds an authenticated connection.
// Listeners learn whether it is the first connection of its user once the lock is released.
func (r *Registry) Register(conn contract.LiveConnection) error {
	if conn.UserID() == "" {
		return errors.ErrAnonymousConnection
	}
	r.mu.Lock()
	if _, ok := r.connections[conn.ID()]; ok {
		r.mu.Unlock()
		return errors.ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	r.perUser[conn.UserID()]++
	first := r.perUser[conn.UserID()] == 1
	r.mu.Unlock()

	r.log.Debug("Connection registered", "connection_id", conn.ID(), "user_id", conn.UserID())
	for _, l := range r.listeners {
		l.ConnectionOpened(conn, first)
	}
	return nil
}

// Unregister removes and closes a connection. Unknown ids are ignored.
func (r *Registry) Unregister(connectionID string) bool {
	r.mu.Lock()
	conn, ok := r.connections[connectionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.connections, connectionID)
	userID := conn.UserID()
	r.perUser[userID]--
	last := r.perUser[userID] <= 0
	if last {
		// No empty entries are kept, the map would grow with every user ever seen
		delete(r.perUser, userID)
	}
	r.mu.Unlock()

	conn.Close()
	r.log.Debug("Connection unregistered", "connection_id", connectionID, "user_id", userID)
	for _, l := range r.listeners {
		l.ConnectionClosed(conn, last)
	}
	return true
}

// ForEach visits a snapshot of the connections.
// Connections whose visit failed are unregistered once the iteration is over; their ids are returned.
func (r *Registry) ForEach(visit func(conn contract.LiveConnection) error) []string {
	var dead []string
	for _, conn := range r.Snapshot() {
		if err := visit(conn); err != nil {
			r.log.Debug("Visit failed", "connection_id", conn.ID(), "error", err)
			dead = append(dead, conn.ID())
		}
	}
	for _, id := range dead {
		r.Unregister(id)
	}
	return dead
}

func (r *Registry) Snapshot() []contract.LiveConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]contract.LiveConnection, 0, len(r.connections))
	for _, conn := range r.connections {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

func (r *Registry) ConnectionsForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.perUser[userID]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
