package sink

import (
	"context"
	"fmt"
	"sync"

	"chat-hub/errors"

	"github.com/google/uuid"
)

// Outbound is one item of a connection's write queue.
// Ping marks a keep-alive: the transport writes its own liveness signal instead of Frame.
type Outbound struct {
	Frame []byte
	Ping  bool
}

// Connection is the live sink shared by every transport.
// Producers (broadcaster, keep-alive worker) enqueue, the transport's writer drains Queue.
// The queue is never closed: Done tells the writer the connection is gone.
type Connection struct {
	id        string
	userID    string
	queue     chan Outbound
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(userID string, bufferSize int) *Connection {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		queue:  make(chan Outbound, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Send enqueues a serialized event.
// It waits for queue space until ctx expires, so a stalled reader costs at most the delivery timeout.
func (c *Connection) Send(ctx context.Context, frame []byte) error {
	return c.enqueue(ctx, Outbound{Frame: frame})
}

func (c *Connection) KeepAlive(ctx context.Context) error {
	return c.enqueue(ctx, Outbound{Ping: true})
}

func (c *Connection) enqueue(ctx context.Context, item Outbound) error {
	// A closed connection must fail even when the queue still has room
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.queue <- item:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, ctx.Err())
	}
}

// Close is idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Connection) Queue() <-chan Outbound { return c.queue }
func (c *Connection) Done() <-chan struct{}  { return c.done }
