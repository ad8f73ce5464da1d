package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-hub/contract"
	"chat-hub/errors"
	"chat-hub/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestKeepAliveWorker_Sweep_Pings_Every_Connection(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockRegistry(ctrl)
	alive := mocks.NewMockLiveConnection(ctrl)
	halfOpen := mocks.NewMockLiveConnection(ctrl)

	// Given the registry reports the half-open connection as pruned
	registry.EXPECT().ForEach(gomock.Any()).
		DoAndReturn(func(visit func(contract.LiveConnection) error) []string {
			var dead []string
			if err := visit(alive); err != nil {
				dead = append(dead, "alive")
			}
			if err := visit(halfOpen); err != nil {
				dead = append(dead, "half-open")
			}
			return dead
		})
	alive.EXPECT().KeepAlive(gomock.Any()).Return(nil)
	halfOpen.EXPECT().KeepAlive(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			req.True(ok, "keep-alive must be bounded")
			return errors.ErrDeliveryFailed
		})

	dead := NewKeepAliveWorker(log, registry, nil, time.Minute, 10*time.Millisecond).Sweep(context.Background())

	req.Equal([]string{"half-open"}, dead)
}

func TestKeepAliveWorker_Run_Ticks_Until_Canceled(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockRegistry(ctrl)

	ticked := make(chan struct{}, 10)
	registry.EXPECT().ForEach(gomock.Any()).
		DoAndReturn(func(func(contract.LiveConnection) error) []string {
			ticked <- struct{}{}
			return nil
		}).MinTimes(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- NewKeepAliveWorker(log, registry, nil, 10*time.Millisecond, time.Second).Run(ctx)
	}()

	<-ticked
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("worker did not stop")
	}
}
