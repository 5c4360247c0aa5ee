// Package mem provides an in-memory USB bus connecting a host stream
// to a device Transport.
package mem

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/usb"
)

// Bus is the device side, implementing comm.Transport.
type Bus struct {
	PacketSize int
	RxQueueLen int
	TxQueueLen int

	lock    sync.Mutex
	session *session
	connCh  chan struct{}
}

type session struct {
	rxCh   chan []byte
	txCh   chan []byte
	doneCh chan struct{}
	once   sync.Once
}

func (s *session) close() {
	s.once.Do(func() { close(s.doneCh) })
}

// NewBus creates a Bus.
func NewBus() *Bus {
	return &Bus{
		PacketSize: usb.FullSpeedPacketSize,
		RxQueueLen: 16,
		TxQueueLen: 16,
		connCh:     make(chan struct{}),
	}
}

// Connect attaches a new host. A previously attached host is detached.
func (b *Bus) Connect() *Host {
	s := &session{
		rxCh:   make(chan []byte, b.RxQueueLen),
		txCh:   make(chan []byte, b.TxQueueLen),
		doneCh: make(chan struct{}),
	}
	b.lock.Lock()
	prev := b.session
	b.session = s
	close(b.connCh)
	b.connCh = make(chan struct{})
	b.lock.Unlock()
	if prev != nil {
		prev.close()
	}
	return &Host{bus: b, session: s}
}

func (b *Bus) disconnect(s *session) {
	b.lock.Lock()
	if b.session == s {
		b.session = nil
	}
	b.lock.Unlock()
	s.close()
}

func (b *Bus) current() *session {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.session
}

// Run implements comm.Transport.
func (b *Bus) Run(ctx context.Context) error {
	<-ctx.Done()
	if s := b.current(); s != nil {
		b.disconnect(s)
	}
	return ctx.Err()
}

// MaxPacketSize implements comm.Transport.
func (b *Bus) MaxPacketSize() int {
	return b.PacketSize
}

// WaitConnection implements comm.Transport.
func (b *Bus) WaitConnection(ctx context.Context) error {
	b.lock.Lock()
	connected, ch := b.session != nil, b.connCh
	b.lock.Unlock()
	if connected {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadPacket implements comm.Transport.
func (b *Bus) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	s := b.current()
	if s == nil {
		return 0, comm.ErrDisconnected
	}
	select {
	case p := <-s.rxCh:
		return copy(buf, p), nil
	case <-s.doneCh:
		return 0, comm.ErrDisconnected
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WritePacket implements comm.Transport.
func (b *Bus) WritePacket(ctx context.Context, packet []byte) error {
	if len(packet) > b.PacketSize {
		return fmt.Errorf("packet size %d exceeds %d", len(packet), b.PacketSize)
	}
	s := b.current()
	if s == nil {
		return comm.ErrDisconnected
	}
	select {
	case s.txCh <- append([]byte(nil), packet...):
		return nil
	case <-s.doneCh:
		return comm.ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Host is the host side of an attached session.
// It implements io.ReadWriteCloser.
type Host struct {
	bus     *Bus
	session *session
	pending []byte
}

// Write sends p as packets of at most PacketSize bytes.
func (h *Host) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := min(len(p)-written, h.bus.PacketSize)
		select {
		case h.session.rxCh <- append([]byte(nil), p[written:written+n]...):
			written += n
		case <-h.session.doneCh:
			return written, io.ErrClosedPipe
		}
	}
	return written, nil
}

// Read receives bytes from packets written by the device.
func (h *Host) Read(p []byte) (int, error) {
	if len(h.pending) == 0 {
		select {
		case h.pending = <-h.session.txCh:
		case <-h.session.doneCh:
			return 0, io.EOF
		}
	}
	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

// Close detaches the host.
func (h *Host) Close() error {
	h.bus.disconnect(h.session)
	return nil
}

// Done is closed when the session ends from either side.
func (h *Host) Done() <-chan struct{} {
	return h.session.doneCh
}
