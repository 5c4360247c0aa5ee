package comm

import (
	"context"
	"sync/atomic"
)

// ConnState is the connection state of the link.
type ConnState int

// Connection states.
const (
	Disconnected ConnState = iota
	Connected
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// StateNotifier is called when the connection state changes.
type StateNotifier interface {
	StateChanged(context.Context, ConnState)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, ConnState)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state ConnState) {
	f(ctx, state)
}

// LinkState holds the flags shared by the pumps and the application.
// All flags start cleared. ResetRequested is never cleared: it is
// consumed by restarting the device.
type LinkState struct {
	connected      atomic.Bool
	ackPending     atomic.Bool
	resetRequested atomic.Bool
}

// Connected reports whether the host is connected.
func (s *LinkState) Connected() bool {
	return s.connected.Load()
}

// State returns the connection state.
func (s *LinkState) State() ConnState {
	if s.Connected() {
		return Connected
	}
	return Disconnected
}

// SetConnected updates the connection flag and reports whether it changed.
func (s *LinkState) SetConnected(connected bool) bool {
	return s.connected.Swap(connected) != connected
}

// RequestResetAck marks that the next fully sent Acknowledgement
// grants a restart.
func (s *LinkState) RequestResetAck() {
	s.ackPending.Store(true)
}

// AckPending reports whether a restart waits for its acknowledgement.
func (s *LinkState) AckPending() bool {
	return s.ackPending.Load()
}

// GrantReset is called after an Acknowledgement was fully written.
// It sets ResetRequested if an acknowledgement was pending and reports
// whether it did.
func (s *LinkState) GrantReset() bool {
	if !s.ackPending.Load() {
		return false
	}
	s.resetRequested.Store(true)
	return true
}

// ResetRequested reports whether the device should restart.
func (s *LinkState) ResetRequested() bool {
	return s.resetRequested.Load()
}
