package msgs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxEncodedSize is the maximum encoded size of any message in this package.
const MaxEncodedSize = binary.MaxVarintLen32

var (
	// ErrTruncated indicates the encoded message is empty or cut short.
	ErrTruncated = errors.New("truncated message")
	// ErrTrailingBytes indicates extra bytes after a complete message.
	ErrTrailingBytes = errors.New("trailing bytes after message")
	// ErrVarintOverflow indicates the variant index overflows uint32.
	ErrVarintOverflow = errors.New("variant index overflow")
	// ErrShortBuffer indicates the buffer is too small to hold the message.
	ErrShortBuffer = errors.New("short buffer")
)

// UnknownVariantError is returned when the variant index is out of range.
type UnknownVariantError struct {
	Type    string
	Variant uint64
}

// Error implements error.
func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s variant %d", e.Type, e.Variant)
}

// Incoming is a message sent from the host to the device.
type Incoming uint32

// Incoming variants, in wire order.
const (
	Reset Incoming = iota
	ExampleMessage
)

var incomingNames = [...]string{"Reset", "ExampleMessage"}

// IncomingNames lists names of all Incoming variants in wire order.
func IncomingNames() []string {
	return incomingNames[:]
}

// ParseIncoming converts a variant name to Incoming.
func ParseIncoming(name string) (Incoming, error) {
	for n, s := range incomingNames {
		if s == name {
			return Incoming(n), nil
		}
	}
	return 0, fmt.Errorf("unknown Incoming variant %q", name)
}

// String implements fmt.Stringer.
func (m Incoming) String() string {
	if m.IsValid() {
		return incomingNames[m]
	}
	return fmt.Sprintf("Incoming(%d)", uint32(m))
}

// IsValid reports whether m is a known variant.
func (m Incoming) IsValid() bool {
	return int(m) < len(incomingNames)
}

// MarshalTo encodes m into buf and returns the encoded size.
func (m Incoming) MarshalTo(buf []byte) (int, error) {
	if !m.IsValid() {
		return 0, &UnknownVariantError{Type: "Incoming", Variant: uint64(m)}
	}
	return putVariant(buf, uint32(m))
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Incoming) MarshalBinary() ([]byte, error) {
	var buf [MaxEncodedSize]byte
	n, err := m.MarshalTo(buf[:])
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf[:n]...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Incoming) UnmarshalBinary(data []byte) error {
	v, err := variant(data, "Incoming", len(incomingNames))
	if err == nil {
		*m = Incoming(v)
	}
	return err
}

// Outgoing is a message sent from the device to the host.
type Outgoing uint32

// Outgoing variants, in wire order.
const (
	Acknowledgement Outgoing = iota
)

var outgoingNames = [...]string{"Acknowledgement"}

// String implements fmt.Stringer.
func (m Outgoing) String() string {
	if m.IsValid() {
		return outgoingNames[m]
	}
	return fmt.Sprintf("Outgoing(%d)", uint32(m))
}

// IsValid reports whether m is a known variant.
func (m Outgoing) IsValid() bool {
	return int(m) < len(outgoingNames)
}

// MarshalTo encodes m into buf and returns the encoded size.
func (m Outgoing) MarshalTo(buf []byte) (int, error) {
	if !m.IsValid() {
		return 0, &UnknownVariantError{Type: "Outgoing", Variant: uint64(m)}
	}
	return putVariant(buf, uint32(m))
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Outgoing) MarshalBinary() ([]byte, error) {
	var buf [MaxEncodedSize]byte
	n, err := m.MarshalTo(buf[:])
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf[:n]...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Outgoing) UnmarshalBinary(data []byte) error {
	v, err := variant(data, "Outgoing", len(outgoingNames))
	if err == nil {
		*m = Outgoing(v)
	}
	return err
}

func putVariant(buf []byte, v uint32) (int, error) {
	var tmp [MaxEncodedSize]byte
	n := binary.PutUvarint(tmp[:], uint64(v))
	if n > len(buf) {
		return 0, ErrShortBuffer
	}
	return copy(buf, tmp[:n]), nil
}

func variant(data []byte, typ string, count int) (uint32, error) {
	v, n := binary.Uvarint(data)
	switch {
	case n == 0:
		return 0, ErrTruncated
	case n < 0 || v > math.MaxUint32:
		return 0, ErrVarintOverflow
	case n != len(data):
		return 0, ErrTrailingBytes
	case v >= uint64(count):
		return 0, &UnknownVariantError{Type: typ, Variant: v}
	}
	return uint32(v), nil
}
