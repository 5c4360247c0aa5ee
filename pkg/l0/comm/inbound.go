package comm

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/l0link/pkg/l0/msgs"
)

// InboundPump receives packets from the host, reassembles frames and
// delivers decoded messages to the inbound Mailbox.
type InboundPump struct {
	Transport Transport
	Mailbox   *Mailbox[msgs.Incoming]
	State     *LinkState
	Notifier  StateNotifier
	// Delivered is called after a message is queued, if set.
	Delivered func()

	acc *Accumulator
}

// NewInboundPump creates an InboundPump. A non-positive accSize
// selects AccumulatorSize.
func NewInboundPump(t Transport, mailbox *Mailbox[msgs.Incoming], state *LinkState, accSize int) *InboundPump {
	if accSize <= 0 {
		accSize = AccumulatorSize
	}
	return &InboundPump{
		Transport: t,
		Mailbox:   mailbox,
		State:     state,
		acc:       NewAccumulator(accSize),
	}
}

// Name implements Named.
func (p *InboundPump) Name() string {
	return "usb-inbound"
}

// Run implements Runnable.
func (p *InboundPump) Run(ctx context.Context) error {
	size := p.Transport.MaxPacketSize()
	if size <= 0 {
		size = PacketSize
	}
	packet := make([]byte, size)
	for {
		if err := p.Transport.WaitConnection(ctx); err != nil {
			return err
		}
		glog.Info("USB connected")
		p.setConnected(ctx, true)

		for {
			n, err := p.Transport.ReadPacket(ctx, packet)
			if err != nil {
				glog.V(1).Infof("USB read: %v", err)
				break
			}
			p.feed(packet[:n])
		}

		p.acc.Reset()
		p.setConnected(ctx, false)
		glog.Info("USB disconnected")
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (p *InboundPump) feed(window []byte) {
	for len(window) > 0 {
		var msg msgs.Incoming
		result := p.acc.Feed(window, &msg)
		switch result.Status {
		case FeedConsumed:
			return
		case FeedOverFull:
			glog.V(2).Info("USB frame exceeds accumulator, dropped")
		case FeedDeserError:
			glog.V(2).Info("USB frame failed to decode, dropped")
		case FeedSuccess:
			p.deliver(msg)
		}
		window = result.Remaining
	}
}

func (p *InboundPump) deliver(msg msgs.Incoming) {
	if err := p.Mailbox.TryPush(msg); err != nil {
		glog.Errorf("Failed to send USB message to firmware: %v", err)
		return
	}
	glog.V(2).Infof("USB received %s", msg)
	if p.Delivered != nil {
		p.Delivered()
	}
}

func (p *InboundPump) setConnected(ctx context.Context, connected bool) {
	if !p.State.SetConnected(connected) || p.Notifier == nil {
		return
	}
	p.Notifier.StateChanged(ctx, p.State.State())
}
