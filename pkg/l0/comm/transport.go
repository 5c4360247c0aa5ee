package comm

import "context"

// Transport is the device side of a packet oriented USB bulk pipe.
//
// WaitConnection blocks until a host is attached. ReadPacket and
// WritePacket move at most one packet and fail with an error wrapping
// ErrDisconnected once the host goes away. WritePacket must honor
// the context deadline as a per-packet timeout.
type Transport interface {
	// Run drives the underlying device and returns when ctx is done.
	Run(ctx context.Context) error
	WaitConnection(ctx context.Context) error
	ReadPacket(ctx context.Context, buf []byte) (int, error)
	WritePacket(ctx context.Context, packet []byte) error
	// MaxPacketSize returns the max number of bytes per packet.
	MaxPacketSize() int
}
