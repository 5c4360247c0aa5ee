package comm

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/l0link/pkg/l0/msgs"
)

// DefaultChunkTimeout bounds the time spent writing a single packet.
const DefaultChunkTimeout = 50 * time.Millisecond

// OutboundPump takes messages from the outbound Mailbox and writes
// them to the host. Messages are dropped while disconnected.
type OutboundPump struct {
	Transport    Transport
	Mailbox      *Mailbox[msgs.Outgoing]
	State        *LinkState
	ChunkTimeout time.Duration

	encoder *FrameEncoder
}

// NewOutboundPump creates an OutboundPump. A non-positive bufSize
// selects EncodeBufferSize.
func NewOutboundPump(t Transport, mailbox *Mailbox[msgs.Outgoing], state *LinkState, bufSize int) *OutboundPump {
	if bufSize <= 0 {
		bufSize = EncodeBufferSize
	}
	return &OutboundPump{
		Transport:    t,
		Mailbox:      mailbox,
		State:        state,
		ChunkTimeout: DefaultChunkTimeout,
		encoder:      NewFrameEncoder(bufSize),
	}
}

// Name implements Named.
func (p *OutboundPump) Name() string {
	return "usb-outbound"
}

// Run implements Runnable.
func (p *OutboundPump) Run(ctx context.Context) error {
	for {
		msg, err := p.Mailbox.Pop(ctx)
		if err != nil {
			return err
		}
		if err := p.Send(ctx, msg); err != nil {
			glog.Errorf("Failed to send %s: %v", msg, err)
		}
	}
}

// Send writes one message. A fully written Acknowledgement grants a
// pending restart. Failures only affect the current message.
func (p *OutboundPump) Send(ctx context.Context, msg msgs.Outgoing) error {
	if !p.State.Connected() {
		glog.V(2).Infof("USB not connected, dropped %s", msg)
		return nil
	}
	frame, err := p.encoder.Encode(msg)
	if err != nil {
		return err
	}
	if err := p.writeFrame(ctx, frame); err != nil {
		return err
	}
	glog.V(2).Infof("USB sent %s", msg)
	if msg == msgs.Acknowledgement && p.State.GrantReset() {
		glog.Info("Setting do reset flag")
	}
	return nil
}

func (p *OutboundPump) writeFrame(ctx context.Context, frame []byte) error {
	size := p.Transport.MaxPacketSize()
	if size <= 0 {
		size = PacketSize
	}
	timeout := p.ChunkTimeout
	if timeout <= 0 {
		timeout = DefaultChunkTimeout
	}
	for len(frame) > 0 {
		n := min(len(frame), size)
		chunkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Transport.WritePacket(chunkCtx, frame[:n])
		expired := errors.Is(chunkCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil {
			if expired && ctx.Err() == nil {
				return ErrChunkTimeout
			}
			return err
		}
		frame = frame[n:]
	}
	return nil
}
