package comm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/l0link/pkg/l0/msgs"
)

// chanTransport delivers packets from readCh; a nil packet disconnects.
type chanTransport struct {
	connCh  chan struct{}
	readCh  chan []byte
	writeCh chan []byte
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		connCh:  make(chan struct{}, 1),
		readCh:  make(chan []byte, 16),
		writeCh: make(chan []byte),
	}
}

func (t *chanTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (t *chanTransport) WaitConnection(ctx context.Context) error {
	select {
	case <-t.connCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *chanTransport) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	select {
	case p := <-t.readCh:
		if p == nil {
			return 0, ErrDisconnected
		}
		return copy(buf, p), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *chanTransport) WritePacket(ctx context.Context, p []byte) error {
	select {
	case t.writeCh <- append([]byte(nil), p...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *chanTransport) MaxPacketSize() int {
	return PacketSize
}

func (t *chanTransport) connect() {
	t.connCh <- struct{}{}
}

func (t *chanTransport) inject(packets ...[]byte) {
	for _, p := range packets {
		t.readCh <- p
	}
}

func eventually(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	deadline := time.Now().Add(500 * time.Millisecond)
	for !cond() {
		if time.Now().After(deadline) {
			require.Fail(t, "condition not met in time", msgAndArgs...)
		}
		time.Sleep(time.Millisecond)
	}
}

type inboundTestEnv struct {
	transport *chanTransport
	mailbox   *Mailbox[msgs.Incoming]
	state     *LinkState
	pump      *InboundPump
	states    chan ConnState
	delivered chan struct{}
	cancel    context.CancelFunc
	doneCh    chan error
}

func newInboundTestEnv(capacity int) *inboundTestEnv {
	env := &inboundTestEnv{
		transport: newChanTransport(),
		mailbox:   NewMailbox[msgs.Incoming](capacity),
		state:     &LinkState{},
		states:    make(chan ConnState, 16),
		delivered: make(chan struct{}, 16),
		doneCh:    make(chan error, 1),
	}
	env.pump = NewInboundPump(env.transport, env.mailbox, env.state, 0)
	env.pump.Notifier = StateChangedFunc(func(ctx context.Context, state ConnState) {
		env.states <- state
	})
	env.pump.Delivered = func() { env.delivered <- struct{}{} }
	var ctx context.Context
	ctx, env.cancel = context.WithCancel(context.Background())
	go func() { env.doneCh <- env.pump.Run(ctx) }()
	return env
}

func (e *inboundTestEnv) expectState(t *testing.T, state ConnState) {
	select {
	case s := <-e.states:
		require.Equal(t, state, s)
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for %s", state)
	}
}

func (e *inboundTestEnv) expectDelivered(t *testing.T, expected ...msgs.Incoming) {
	for _, m := range expected {
		select {
		case <-e.delivered:
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s", m)
		}
		got, ok := e.mailbox.TryPop()
		require.True(t, ok)
		require.Equal(t, m, got)
	}
}

func (e *inboundTestEnv) stop(t *testing.T) {
	e.cancel()
	select {
	case err := <-e.doneCh:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("pump not stopped")
	}
}

func TestInboundPumpDelivers(t *testing.T) {
	env := newInboundTestEnv(MailboxSize)
	env.transport.connect()
	env.expectState(t, Connected)
	assert.True(t, env.state.Connected())

	env.transport.inject([]byte{0x01, 0x01, 0x00, 0x02, 0x01, 0x00})
	env.expectDelivered(t, msgs.Reset, msgs.ExampleMessage)

	// A frame split across packets.
	env.transport.inject([]byte{0x02}, []byte{0x01}, []byte{0x00, 0x01, 0x01}, []byte{0x00})
	env.expectDelivered(t, msgs.ExampleMessage, msgs.Reset)

	// Garbage before a valid frame.
	env.transport.inject([]byte{0x07, 0x33, 0x00, 0x02, 0x01, 0x00})
	env.expectDelivered(t, msgs.ExampleMessage)
	env.stop(t)
	env.expectState(t, Disconnected)
}

func TestInboundPumpReconnectDropsPartialFrame(t *testing.T) {
	env := newInboundTestEnv(MailboxSize)
	env.transport.connect()
	env.expectState(t, Connected)
	env.transport.inject([]byte{0x02, 0x01}, nil)
	env.expectState(t, Disconnected)
	assert.False(t, env.state.Connected())

	env.transport.connect()
	env.expectState(t, Connected)
	env.transport.inject([]byte{0x00, 0x01, 0x01, 0x00})
	env.expectDelivered(t, msgs.Reset)
	assert.Equal(t, 0, env.mailbox.Len())
	env.stop(t)
}

func TestInboundPumpMailboxFull(t *testing.T) {
	env := newInboundTestEnv(1)
	env.transport.connect()
	env.expectState(t, Connected)
	env.transport.inject([]byte{0x02, 0x01, 0x00, 0x01, 0x01, 0x00})
	select {
	case <-env.delivered:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout")
	}
	time.Sleep(20 * time.Millisecond)
	// The second frame was dropped while the mailbox was full.
	assert.Equal(t, 1, env.mailbox.Len())
	assert.Empty(t, env.delivered)
	m, _ := env.mailbox.TryPop()
	assert.Equal(t, msgs.ExampleMessage, m)

	env.transport.inject([]byte{0x01, 0x01, 0x00})
	env.expectDelivered(t, msgs.Reset)
	env.stop(t)
}

type outboundTestEnv struct {
	transport *chanTransport
	state     *LinkState
	pump      *OutboundPump
}

func newOutboundTestEnv() *outboundTestEnv {
	env := &outboundTestEnv{transport: newChanTransport(), state: &LinkState{}}
	env.pump = NewOutboundPump(env.transport, NewMailbox[msgs.Outgoing](MailboxSize), env.state, 0)
	return env
}

func (e *outboundTestEnv) collect(packets int) <-chan []byte {
	resultCh := make(chan []byte, 1)
	go func() {
		var data []byte
		for i := 0; i < packets; i++ {
			data = append(data, <-e.transport.writeCh...)
		}
		resultCh <- data
	}()
	return resultCh
}

func TestOutboundPumpDropsWhenDisconnected(t *testing.T) {
	env := newOutboundTestEnv()
	env.state.RequestResetAck()
	require.NoError(t, env.pump.Send(context.Background(), msgs.Acknowledgement))
	assert.False(t, env.state.ResetRequested())
	select {
	case p := <-env.transport.writeCh:
		t.Fatalf("unexpected write % x", p)
	default:
	}
}

func TestOutboundPumpDrainsWhileDisconnected(t *testing.T) {
	env := newOutboundTestEnv()
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- env.pump.Run(ctx) }()

	for i := 0; i < MailboxSize; i++ {
		require.NoError(t, env.pump.Mailbox.TryPush(msgs.Acknowledgement))
	}
	eventually(t, func() bool { return env.pump.Mailbox.Len() == 0 })
	time.Sleep(20 * time.Millisecond)
	select {
	case p := <-env.transport.writeCh:
		t.Fatalf("unexpected write % x", p)
	default:
	}

	env.state.SetConnected(true)
	require.NoError(t, env.pump.Mailbox.TryPush(msgs.Acknowledgement))
	select {
	case p := <-env.transport.writeCh:
		assert.Equal(t, []byte{0x01, 0x01, 0x00}, p)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout")
	}
	select {
	case p := <-env.transport.writeCh:
		t.Fatalf("unexpected write % x", p)
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	assert.Equal(t, context.Canceled, <-doneCh)
}

// zeroPacketTransport reports no packet size.
type zeroPacketTransport struct {
	*chanTransport
}

func (zeroPacketTransport) MaxPacketSize() int {
	return 0
}

func TestOutboundPumpDefaultPacketSize(t *testing.T) {
	env := newOutboundTestEnv()
	env.pump.Transport = zeroPacketTransport{env.transport}
	frame := make([]byte, PacketSize+1)
	resultCh := make(chan []int, 1)
	go func() {
		resultCh <- []int{len(<-env.transport.writeCh), len(<-env.transport.writeCh)}
	}()
	require.NoError(t, env.pump.writeFrame(context.Background(), frame))
	select {
	case sizes := <-resultCh:
		assert.Equal(t, []int{PacketSize, 1}, sizes)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout")
	}
}

func TestOutboundPumpAckGrantsReset(t *testing.T) {
	env := newOutboundTestEnv()
	env.state.SetConnected(true)

	resultCh := env.collect(1)
	require.NoError(t, env.pump.Send(context.Background(), msgs.Acknowledgement))
	assert.Equal(t, []byte{0x01, 0x01, 0x00}, <-resultCh)
	assert.False(t, env.state.ResetRequested())

	env.state.RequestResetAck()
	assert.False(t, env.state.ResetRequested())
	resultCh = env.collect(1)
	require.NoError(t, env.pump.Send(context.Background(), msgs.Acknowledgement))
	<-resultCh
	assert.True(t, env.state.ResetRequested())
}

func TestOutboundPumpChunkTimeout(t *testing.T) {
	env := newOutboundTestEnv()
	env.state.SetConnected(true)
	env.state.RequestResetAck()
	env.pump.ChunkTimeout = 10 * time.Millisecond

	err := env.pump.Send(context.Background(), msgs.Acknowledgement)
	assert.Equal(t, ErrChunkTimeout, err)
	assert.False(t, env.state.ResetRequested())

	// The next message is not affected.
	resultCh := env.collect(1)
	require.NoError(t, env.pump.Send(context.Background(), msgs.Acknowledgement))
	assert.Equal(t, []byte{0x01, 0x01, 0x00}, <-resultCh)
	assert.True(t, env.state.ResetRequested())
}

func TestOutboundPumpSplitsPackets(t *testing.T) {
	env := newOutboundTestEnv()
	frame := make([]byte, PacketSize*2+10)
	for n := range frame {
		frame[n] = byte(n)
	}
	var sizes []int
	var lock sync.Mutex
	go func() {
		for p := range env.transport.writeCh {
			lock.Lock()
			sizes = append(sizes, len(p))
			lock.Unlock()
		}
	}()
	require.NoError(t, env.pump.writeFrame(context.Background(), frame))
	eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(sizes) == 3
	})
	assert.Equal(t, []int{PacketSize, PacketSize, 10}, sizes)
}

func TestOutboundPumpRun(t *testing.T) {
	env := newOutboundTestEnv()
	env.state.SetConnected(true)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- env.pump.Run(ctx) }()

	resultCh := env.collect(2)
	require.NoError(t, env.pump.Mailbox.TryPush(msgs.Acknowledgement))
	require.NoError(t, env.pump.Mailbox.TryPush(msgs.Acknowledgement))
	select {
	case data := <-resultCh:
		assert.Equal(t, []byte{0x01, 0x01, 0x00, 0x01, 0x01, 0x00}, data)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout")
	}
	cancel()
	assert.Equal(t, context.Canceled, <-doneCh)
}
