package firmware

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/l0link/pkg/framework"
	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/msgs"
)

type watchdogFeeder struct {
	board Board
}

func (c *watchdogFeeder) Control(fx.ControlContext) error {
	if wd := c.board.Watchdog(); wd != nil {
		wd.Feed()
	}
	return nil
}

// watchdogUnleasher starts the watchdog from the main loop after delay.
type watchdogUnleasher struct {
	board Board
	delay time.Duration
}

func (u *watchdogUnleasher) Name() string {
	return "watchdog-unleash"
}

func (u *watchdogUnleasher) Run(ctx context.Context) error {
	wd := u.board.Watchdog()
	if wd == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(u.delay):
	}
	ctl := fx.LoopCtlFrom(ctx)
	ctl.PreRunAt(fx.PrLvWatchdog, fx.ControlFunc(func(fx.ControlContext) error {
		glog.Info("Unleashing watchdog")
		wd.Start()
		return nil
	}))
	ctl.TriggerNext()
	return nil
}

type resetController struct {
	state      *comm.LinkState
	board      Board
	grace      time.Duration
	restarting bool
}

func (c *resetController) Control(cc fx.ControlContext) error {
	if c.restarting || !c.state.ResetRequested() {
		return nil
	}
	c.restarting = true
	glog.Info("Resetting device")
	select {
	case <-cc.Context().Done():
		return nil
	case <-time.After(c.grace):
	}
	c.board.Restart()
	return nil
}

// dispatcher handles at most one incoming message per iteration.
type dispatcher struct {
	state    *comm.LinkState
	inbound  *comm.Mailbox[msgs.Incoming]
	outbound *comm.Mailbox[msgs.Outgoing]
}

func (d *dispatcher) Control(cc fx.ControlContext) error {
	msg, ok := d.inbound.TryPop()
	if !ok {
		return nil
	}
	if d.inbound.Len() > 0 {
		cc.TriggerNext()
	}
	switch msg {
	case msgs.Reset:
		glog.Info("Reset requested")
		d.state.RequestResetAck()
	case msgs.ExampleMessage:
		glog.Info("Example message received")
	default:
		glog.Warningf("Unhandled message %s", msg)
		return nil
	}
	if err := d.outbound.TryPush(msgs.Acknowledgement); err != nil {
		glog.Errorf("Failed to send message: %v", err)
	}
	return nil
}

type heartbeat struct {
	interval time.Duration
	last     time.Time
}

func (h *heartbeat) Control(cc fx.ControlContext) error {
	if now := cc.Time(); now.Sub(h.last) >= h.interval {
		h.last = now
		glog.Infof("Hello from main loop, iteration %d", cc.Iteration())
	}
	return nil
}
