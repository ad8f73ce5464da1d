package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-hub/contract"
	"chat-hub/domain/event"
	"chat-hub/observability"
)

// Broadcaster delivers one event to every live connection.
//
// It is best-effort: no acknowledgement, no retry, no ordering across callers.
// Each recipient is written concurrently under its own deadline, so a stalled or
// broken connection only costs itself. Recipients that failed are unregistered
// once the attempt is over.
type Broadcaster struct {
	log             *slog.Logger
	registry        contract.Registry
	metrics         *observability.Metrics
	deliveryTimeout time.Duration
}

func NewBroadcaster(log *slog.Logger, registry contract.Registry,
	metrics *observability.Metrics, deliveryTimeout time.Duration) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, metrics: metrics, deliveryTimeout: deliveryTimeout}
}

// Broadcast returns once every delivery attempt is over, enqueued or failed.
// Returning late keeps per-caller ordering: two successive broadcasts land in the
// same order on every connection queue.
func (b *Broadcaster) Broadcast(ctx context.Context, e event.Event, excludeConnectionID string) {
	frame, err := event.Encode(e)
	if err != nil {
		b.log.Error("Unable to encode event", "type", e.Tag(), "error", err)
		return
	}

	// A request ending must not cancel deliveries already started
	ctx = context.WithoutCancel(ctx)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		dead []string
	)
	recipients := 0
	for _, conn := range b.registry.Snapshot() {
		if conn.ID() == excludeConnectionID {
			continue
		}
		recipients++
		wg.Add(1)
		go func(conn contract.LiveConnection) {
			defer wg.Done()
			deliveryCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
			defer cancel()
			if err := conn.Send(deliveryCtx, frame); err != nil {
				b.log.Debug("Delivery failed",
					"type", e.Tag(),
					"connection_id", conn.ID(),
					"user_id", conn.UserID(),
					"error", err)
				mu.Lock()
				dead = append(dead, conn.ID())
				mu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	for _, id := range dead {
		b.registry.Unregister(id)
	}
	b.metrics.EventBroadcast(string(e.Tag()), recipients-len(dead), len(dead))
	b.metrics.ConnectionsPruned(len(dead))
	if len(dead) > 0 {
		b.log.Info("Pruned dead connections", "type", e.Tag(), "count", len(dead))
	}
}
