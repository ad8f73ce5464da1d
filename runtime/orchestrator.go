// Package runtime handles connection lifecycle, fan-out and presence.
// It orchestrates delivery without containing business logic or domain rules.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/observability"
	"chat-hub/runtime/workers"
)

type Config struct {
	DeliveryTimeout      time.Duration
	KeepAliveInterval    time.Duration
	PresenceOfflineGrace time.Duration
	RestartInterval      time.Duration
}

// Orchestrator is the explicitly constructed owner of the registry, broadcaster,
// presence tracker and background workers. Build one at process start, Stop it at shutdown.
type Orchestrator struct {
	log         *slog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	presence    *PresenceTracker
	supervisor  contract.ISupervisor
	started     atomic.Bool
	done        chan struct{}
}

func NewOrchestrator(log *slog.Logger, metrics *observability.Metrics, now chat.Clock, cfg Config) *Orchestrator {
	registry := NewRegistry(log)
	broadcaster := NewBroadcaster(log, registry, metrics, cfg.DeliveryTimeout)
	presence := NewPresenceTracker(log, registry, broadcaster, now, cfg.PresenceOfflineGrace)
	registry.AddListener(presence, metrics)

	supervisor := workers.NewSupervisor(log, cfg.RestartInterval).
		Add(workers.NewKeepAliveWorker(log, registry, metrics, cfg.KeepAliveInterval, cfg.DeliveryTimeout))

	return &Orchestrator{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		presence:    presence,
		supervisor:  supervisor,
		done:        make(chan struct{}),
	}
}

// Start launches the supervised workers and returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(o.done)
		o.supervisor.Run(ctx)
	}()
}

// Connect acknowledges the handshake then makes the connection reachable.
// The ack is queued before registration so no broadcast can overtake it.
func (o *Orchestrator) Connect(ctx context.Context, conn contract.LiveConnection) error {
	frame, err := event.Encode(event.Connected{UserID: conn.UserID()})
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("handshake for %s: %w", conn.UserID(), err)
	}
	if err := o.registry.Register(conn); err != nil {
		return err
	}
	o.log.Info("Client connected", "connection_id", conn.ID(), "user_id", conn.UserID())
	return nil
}

func (o *Orchestrator) Disconnect(connectionID string) {
	if o.registry.Unregister(connectionID) {
		o.log.Info("Client disconnected", "connection_id", connectionID)
	}
}

func (o *Orchestrator) Broadcaster() *Broadcaster  { return o.broadcaster }
func (o *Orchestrator) Presence() *PresenceTracker { return o.presence }
func (o *Orchestrator) Registry() *Registry        { return o.registry }

// Stop cancels the workers, waits for them, then closes every remaining connection.
func (o *Orchestrator) Stop() {
	if o.started.Load() {
		o.supervisor.Stop()
		select {
		case <-o.done:
		case <-time.After(5 * time.Second):
			o.log.Warn("Workers did not stop in time")
		}
	}
	for _, conn := range o.registry.Snapshot() {
		o.registry.Unregister(conn.ID())
	}
	o.log.Debug("Orchestrator stopped")
}
