package comm

import "context"

// Mailbox is a bounded FIFO queue between two tasks.
// Pushes never block: a full mailbox rejects the message.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox creates a Mailbox holding at most capacity messages.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// TryPush enqueues v or returns ErrMailboxFull.
func (m *Mailbox[T]) TryPush(v T) error {
	select {
	case m.ch <- v:
		return nil
	default:
		return ErrMailboxFull
	}
}

// TryPop dequeues the oldest message if there is one.
func (m *Mailbox[T]) TryPop() (v T, ok bool) {
	select {
	case v = <-m.ch:
		return v, true
	default:
		return v, false
	}
}

// Pop waits for the oldest message.
func (m *Mailbox[T]) Pop(ctx context.Context) (v T, err error) {
	select {
	case v = <-m.ch:
		return v, nil
	case <-ctx.Done():
		return v, ctx.Err()
	}
}

// Len returns the number of queued messages.
func (m *Mailbox[T]) Len() int {
	return len(m.ch)
}

// Cap returns the capacity.
func (m *Mailbox[T]) Cap() int {
	return cap(m.ch)
}
