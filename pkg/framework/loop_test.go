package framework

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopPriorityOrder(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	var order []int
	record := func(lv int) Controller {
		return ControlFunc(func(cc ControlContext) error {
			assert.Equal(t, lv, cc.PriorityLevel())
			order = append(order, lv)
			return nil
		})
	}
	l.AddController(PrLvIdle, record(PrLvIdle))
	l.AddController(PrLvControl, record(PrLvControl))
	l.AddController(PrLvWatchdog, ControlFunc(func(cc ControlContext) error {
		order = append(order, PrLvWatchdog)
		if cc.Iteration() == 2 {
			cancel()
		}
		return nil
	}))

	doneCh := make(chan error, 1)
	go func() { doneCh <- l.Run(ctx) }()
	l.TriggerNext()
	for l.Iterations() < 1 {
		time.Sleep(time.Millisecond)
	}
	l.TriggerNext()
	select {
	case err := <-doneCh:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("loop not stopped")
	}
	require.True(t, len(order) >= 4)
	assert.Equal(t, []int{PrLvWatchdog, PrLvControl, PrLvIdle, PrLvWatchdog}, order[:4])
}

func TestLoopRunnablesGetControl(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Hour
	ranCh := make(chan struct{})
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		ctl := LoopCtlFrom(ctx)
		require.NotNil(t, ctl)
		ctl.PreRunAt(PrLvTop, ControlFunc(func(ControlContext) error {
			close(ranCh)
			return nil
		}))
		ctl.TriggerNext()
		<-ctx.Done()
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	select {
	case <-ranCh:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("hook not executed")
	}
	assert.Nil(t, LoopCtlFrom(context.Background()))
}
