package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/observability"
)

const defaultKeepAliveInterval = 30 * time.Second

// KeepAliveWorker pings every live connection at a fixed interval, independent of traffic.
// It bounds how long a half-open connection stays registered and keeps idle
// intermediaries from dropping quiet sockets. A failed ping prunes like a failed broadcast.
type KeepAliveWorker struct {
	log             *slog.Logger
	registry        contract.Registry
	metrics         *observability.Metrics
	interval        time.Duration
	deliveryTimeout time.Duration
}

func NewKeepAliveWorker(log *slog.Logger, registry contract.Registry, metrics *observability.Metrics,
	interval, deliveryTimeout time.Duration) *KeepAliveWorker {
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}
	return &KeepAliveWorker{
		log:             log,
		registry:        registry,
		metrics:         metrics,
		interval:        interval,
		deliveryTimeout: deliveryTimeout,
	}
}

func (w *KeepAliveWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping keep-alive")
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep sends one keep-alive to every connection and returns the pruned ids.
func (w *KeepAliveWorker) Sweep(ctx context.Context) []string {
	dead := w.registry.ForEach(func(conn contract.LiveConnection) error {
		pingCtx, cancel := context.WithTimeout(ctx, w.deliveryTimeout)
		defer cancel()
		return conn.KeepAlive(pingCtx)
	})
	if len(dead) > 0 {
		w.metrics.ConnectionsPruned(len(dead))
		w.log.Info("Keep-alive pruned connections", "count", len(dead))
	}
	return dead
}
