package msgs

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"

	l0 "github.com/robotalks/l0link/pkg/l0/msgs"
)

// Direction of a LinkMessage.
type Direction int32

// Directions.
const (
	Command Direction = 0
	Event   Direction = 1
)

var directionNames = map[Direction]string{
	Command: "COMMAND",
	Event:   "EVENT",
}

// String implements fmt.Stringer.
func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Direction(%d)", int32(d))
}

// LinkMessage is the envelope of a link message.
type LinkMessage struct {
	Seq       uint32    `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Direction Direction `protobuf:"varint,2,opt,name=direction,proto3,enum=l0link.l1.Direction" json:"direction,omitempty"`
	Kind      string    `protobuf:"bytes,3,opt,name=kind,proto3" json:"kind,omitempty"`
	Variant   uint32    `protobuf:"varint,4,opt,name=variant,proto3" json:"variant,omitempty"`
	Error     string    `protobuf:"bytes,5,opt,name=error,proto3" json:"error,omitempty"`
	Timestamp int64     `protobuf:"varint,6,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// Reset implements proto.Message.
func (m *LinkMessage) Reset() { *m = LinkMessage{} }

// String implements proto.Message.
func (m *LinkMessage) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*LinkMessage) ProtoMessage() {}

func init() {
	proto.RegisterType((*LinkMessage)(nil), "l0link.l1.LinkMessage")
}

// NewCommand wraps an incoming message.
func NewCommand(seq uint32, msg l0.Incoming) *LinkMessage {
	return &LinkMessage{
		Seq:       seq,
		Direction: Command,
		Kind:      msg.String(),
		Variant:   uint32(msg),
		Timestamp: time.Now().UnixNano(),
	}
}

// NewEvent wraps an outgoing message, or the error of a failed command.
func NewEvent(seq uint32, msg l0.Outgoing, err error) *LinkMessage {
	m := &LinkMessage{
		Seq:       seq,
		Direction: Event,
		Timestamp: time.Now().UnixNano(),
	}
	if err != nil {
		m.Error = err.Error()
	} else {
		m.Kind, m.Variant = msg.String(), uint32(msg)
	}
	return m
}

// Incoming extracts the incoming message from a command. Kind takes
// precedence over Variant and is case insensitive, "example" is
// accepted as ExampleMessage.
func (m *LinkMessage) Incoming() (l0.Incoming, error) {
	if m.Direction != Command {
		return 0, fmt.Errorf("not a command: %s", m.Direction)
	}
	if m.Kind == "" {
		msg := l0.Incoming(m.Variant)
		if !msg.IsValid() {
			return 0, &l0.UnknownVariantError{Type: "Incoming", Variant: uint64(m.Variant)}
		}
		return msg, nil
	}
	if strings.EqualFold(m.Kind, "example") {
		return l0.ExampleMessage, nil
	}
	for _, name := range l0.IncomingNames() {
		if strings.EqualFold(m.Kind, name) {
			return l0.ParseIncoming(name)
		}
	}
	return 0, fmt.Errorf("unknown command %q", m.Kind)
}

// Encode serializes the message.
func (m *LinkMessage) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// Decode parses a serialized LinkMessage.
func Decode(data []byte) (*LinkMessage, error) {
	m := &LinkMessage{}
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
