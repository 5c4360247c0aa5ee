// Package firmware assembles the device: the USB link pumps, the
// main loop and the board services.
package firmware

import (
	"context"

	"github.com/golang/glog"

	fx "github.com/robotalks/l0link/pkg/framework"
	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/msgs"
	"github.com/robotalks/l0link/pkg/version"
)

// Firmware is one boot of the device.
type Firmware struct {
	Config    *Config
	Board     Board
	Transport comm.Transport

	State        *comm.LinkState
	Inbound      *comm.Mailbox[msgs.Incoming]
	Outbound     *comm.Mailbox[msgs.Outgoing]
	InboundPump  *comm.InboundPump
	OutboundPump *comm.OutboundPump
	Loop         *fx.Loop
}

// New creates a Firmware with fresh state.
func New(conf *Config, t comm.Transport, board Board) *Firmware {
	mailboxSize := conf.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = comm.MailboxSize
	}
	f := &Firmware{
		Config:    conf,
		Board:     board,
		Transport: t,
		State:     &comm.LinkState{},
		Inbound:   comm.NewMailbox[msgs.Incoming](mailboxSize),
		Outbound:  comm.NewMailbox[msgs.Outgoing](mailboxSize),
		Loop:      fx.NewLoop(),
	}

	f.InboundPump = comm.NewInboundPump(t, f.Inbound, f.State, conf.AccumulatorSize)
	f.InboundPump.Delivered = f.Loop.TriggerNext
	f.OutboundPump = comm.NewOutboundPump(t, f.Outbound, f.State, conf.EncodeBufferSize)
	f.OutboundPump.ChunkTimeout = conf.ChunkTimeout

	f.Loop.Interval = conf.LoopInterval
	f.Loop.AddController(fx.PrLvWatchdog, &watchdogFeeder{board: board})
	f.Loop.AddController(fx.PrLvSystem, &resetController{state: f.State, board: board, grace: conf.ResetGrace})
	f.Loop.AddController(fx.PrLvControl, &dispatcher{state: f.State, inbound: f.Inbound, outbound: f.Outbound})
	if conf.HeartbeatInterval > 0 {
		f.Loop.AddController(fx.PrLvIdle, &heartbeat{interval: conf.HeartbeatInterval})
	}
	f.Loop.AddRunnable(
		f.InboundPump,
		f.OutboundPump,
		&watchdogUnleasher{board: board, delay: conf.WatchdogUnleashDelay},
	)
	return f
}

// Run implements Runnable. It returns when ctx is done or the
// transport fails.
func (f *Firmware) Run(ctx context.Context) error {
	glog.Infof("Booting %s, USB %s", version.ProductDescription(), f.Config.Device)
	return fx.NewRunnerWith(ctx).
		CancelOnExit().
		Go(fx.NamedRun("usb-transport", f.Transport), fx.NamedRun("main-loop", f.Loop)).
		Wait()
}
