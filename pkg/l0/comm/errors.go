package comm

import "errors"

var (
	// ErrMailboxFull indicates a non-blocking push found no free slot.
	ErrMailboxFull = errors.New("mailbox full")
	// ErrFrameTooLarge indicates an encoded frame doesn't fit the encode buffer.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrDisconnected indicates the host is not connected.
	ErrDisconnected = errors.New("disconnected")
	// ErrChunkTimeout indicates a packet write did not complete in time.
	ErrChunkTimeout = errors.New("packet write timeout")
	// ErrNoReply indicates the link went down before a reply was received.
	ErrNoReply = errors.New("no reply")
)
