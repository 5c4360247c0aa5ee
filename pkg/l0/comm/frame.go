package comm

import "github.com/robotalks/l0link/pkg/l0/cobs"

// Link sizing defaults.
const (
	// PacketSize is the max packet size of a full-speed bulk endpoint.
	PacketSize = 64
	// AccumulatorSize is the default capacity of the inbound frame buffer.
	AccumulatorSize = 8192
	// EncodeBufferSize is the default capacity of the outbound frame buffer.
	EncodeBufferSize = 4096
	// MailboxSize is the default capacity of each direction's mailbox.
	MailboxSize = 5
)

// Marshaler serializes a message into a caller provided buffer.
type Marshaler interface {
	MarshalTo(buf []byte) (int, error)
}

// FrameEncoder serializes messages into delimited COBS frames
// using fixed buffers. It is not safe for concurrent use.
type FrameEncoder struct {
	payload []byte
	frame   []byte
}

// NewFrameEncoder creates a FrameEncoder whose frames never exceed size bytes.
func NewFrameEncoder(size int) *FrameEncoder {
	return &FrameEncoder{
		payload: make([]byte, size),
		frame:   make([]byte, size),
	}
}

// Encode returns the frame of msg including the trailing delimiter.
// The returned slice is only valid until the next call.
func (e *FrameEncoder) Encode(msg Marshaler) ([]byte, error) {
	n, err := msg.MarshalTo(e.payload)
	if err != nil {
		return nil, err
	}
	if cobs.MaxEncodedLen(n)+1 > len(e.frame) {
		return nil, ErrFrameTooLarge
	}
	size, err := cobs.Encode(e.frame, e.payload[:n])
	if err != nil {
		return nil, err
	}
	e.frame[size] = cobs.Delimiter
	return e.frame[:size+1], nil
}

// EncodeFrame is a convenience form of FrameEncoder.Encode returning
// a newly allocated frame.
func EncodeFrame(msg Marshaler) ([]byte, error) {
	frame, err := NewFrameEncoder(EncodeBufferSize).Encode(msg)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), frame...), nil
}
