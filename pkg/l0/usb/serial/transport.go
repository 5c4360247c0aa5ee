// Package serial runs the device link over a serial port, e.g. a
// UART bridge or a pseudo terminal.
package serial

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/usb"
)

// Port is the subset of serial.Port used by the transport.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
}

// Transport implements comm.Transport. The host is considered
// connected while the port is open. I/O errors close the port and
// it is reopened after ReopenInterval.
type Transport struct {
	Device         string
	Mode           *serial.Mode
	PacketSize     int
	ReopenInterval time.Duration
	// PollInterval bounds a blocking read so cancellation is noticed.
	PollInterval time.Duration
	// Open opens the port, serial.Open with Device and Mode if nil.
	Open func() (Port, error)

	lock   sync.Mutex
	port   Port
	connCh chan struct{}
	lostCh chan struct{}
}

// DefaultPollInterval is used when PollInterval is not set.
const DefaultPollInterval = 100 * time.Millisecond

// New creates a Transport from a URL like serial:///dev/ttyGS0?baud=115200.
func New(rawURL string) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	name, mode, err := usb.ParseSerialURL(u)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		Device:         name,
		Mode:           mode,
		PacketSize:     usb.FullSpeedPacketSize,
		ReopenInterval: time.Second,
		PollInterval:   DefaultPollInterval,
	}
	return t, nil
}

// Run implements comm.Transport.
func (t *Transport) Run(ctx context.Context) error {
	for {
		port, err := t.open()
		if err == nil {
			glog.Infof("serial port %s opened", t.Device)
			poll := t.PollInterval
			if poll <= 0 {
				poll = DefaultPollInterval
			}
			port.SetReadTimeout(poll)
			lostCh := t.attach(port)
			select {
			case <-ctx.Done():
				t.detach(port)
				return ctx.Err()
			case <-lostCh:
				glog.Infof("serial port %s closed", t.Device)
			}
		} else {
			glog.V(1).Infof("open serial port %s: %v", t.Device, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.ReopenInterval):
		}
	}
}

func (t *Transport) open() (Port, error) {
	if t.Open != nil {
		return t.Open()
	}
	return serial.Open(t.Device, t.Mode)
}

// MaxPacketSize implements comm.Transport.
func (t *Transport) MaxPacketSize() int {
	if t.PacketSize > 0 {
		return t.PacketSize
	}
	return usb.FullSpeedPacketSize
}

// WaitConnection implements comm.Transport.
func (t *Transport) WaitConnection(ctx context.Context) error {
	t.lock.Lock()
	open, ch := t.port != nil, t.connChLocked()
	t.lock.Unlock()
	if open {
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
func (t *Transport) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	port := t.current()
	if port == nil {
		return 0, comm.ErrDisconnected
	}
	if size := t.MaxPacketSize(); len(buf) > size {
		buf = buf[:size]
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := port.Read(buf)
		if err != nil {
			t.detach(port)
			return 0, fmt.Errorf("%w: %v", comm.ErrDisconnected, err)
		}
		if n > 0 {
			return n, nil
		}
	}
}

// WritePacket implements comm.Transport.
func (t *Transport) WritePacket(ctx context.Context, packet []byte) error {
	port := t.current()
	if port == nil {
		return comm.ErrDisconnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := port.Write(packet); err != nil {
		t.detach(port)
		return fmt.Errorf("%w: %v", comm.ErrDisconnected, err)
	}
	return nil
}

func (t *Transport) current() Port {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.port
}

func (t *Transport) attach(port Port) <-chan struct{} {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.port = port
	t.lostCh = make(chan struct{})
	close(t.connChLocked())
	t.connCh = make(chan struct{})
	return t.lostCh
}

func (t *Transport) connChLocked() chan struct{} {
	if t.connCh == nil {
		t.connCh = make(chan struct{})
	}
	return t.connCh
}

func (t *Transport) detach(port Port) {
	t.lock.Lock()
	if t.port == port {
		t.port = nil
		close(t.lostCh)
	}
	t.lock.Unlock()
	port.Close()
}
