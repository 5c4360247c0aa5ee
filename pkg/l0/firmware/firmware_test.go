package firmware

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/msgs"
	"github.com/robotalks/l0link/pkg/l0/usb/mem"
)

func testConfig() *Config {
	conf := NewConfig()
	conf.TransportURL = "mem:"
	conf.LoopInterval = 10 * time.Millisecond
	conf.WatchdogTimeout = 500 * time.Millisecond
	conf.WatchdogUnleashDelay = 20 * time.Millisecond
	conf.HeartbeatInterval = 50 * time.Millisecond
	return conf
}

type bootTestEnv struct {
	t      *testing.T
	bus    *mem.Bus
	boots  atomic.Int32
	cancel context.CancelFunc
	doneCh chan error
}

func newBootTestEnv(t *testing.T) *bootTestEnv {
	env := &bootTestEnv{t: t, bus: mem.NewBus(), doneCh: make(chan error, 1)}
	var ctx context.Context
	ctx, env.cancel = context.WithCancel(context.Background())
	go func() {
		env.doneCh <- Boot(ctx, testConfig(), func() (comm.Transport, error) {
			env.boots.Add(1)
			return env.bus, nil
		})
	}()
	return env
}

func (e *bootTestEnv) attach() (*mem.Host, *comm.Client, <-chan error) {
	host := e.bus.Connect()
	client := comm.NewClient(host)
	runCh := make(chan error, 1)
	go func() { runCh <- client.Run(context.Background()) }()
	return host, client, runCh
}

func (e *bootTestEnv) request(client *comm.Client, msg msgs.Incoming) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := client.DoWait(ctx, msg)
	require.NoError(e.t, err, "%s", msg)
	require.Equal(e.t, msgs.Acknowledgement, reply)
}

func (e *bootTestEnv) stop() {
	e.cancel()
	select {
	case err := <-e.doneCh:
		assert.NoError(e.t, err)
	case <-time.After(time.Second):
		e.t.Fatal("firmware not stopped")
	}
}

func TestResetHandshake(t *testing.T) {
	env := newBootTestEnv(t)
	host, client, runCh := env.attach()
	env.request(client, msgs.ExampleMessage)

	// An example message doesn't restart the device.
	select {
	case <-host.Done():
		t.Fatal("unexpected restart")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, int32(1), env.boots.Load())

	env.request(client, msgs.Reset)
	select {
	case <-runCh:
	case <-time.After(time.Second):
		t.Fatal("device not restarted")
	}
	eventually(t, func() bool { return env.boots.Load() == 2 })

	_, client, _ = env.attach()
	env.request(client, msgs.ExampleMessage)
	env.stop()
}

func TestResetNotGrantedWhileDisconnected(t *testing.T) {
	bus := mem.NewBus()
	board := &testBoard{}
	fw := New(testConfig(), bus, board)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- fw.Run(ctx) }()

	require.NoError(t, fw.Inbound.TryPush(msgs.Reset))
	fw.Loop.TriggerNext()
	eventually(t, fw.State.AckPending)
	time.Sleep(100 * time.Millisecond)
	assert.False(t, fw.State.ResetRequested())
	assert.Equal(t, 0, board.restarts())

	// The dropped acknowledgement keeps the reset pending until the host
	// resends Reset and receives the acknowledgement.
	assert.True(t, fw.State.AckPending())
	client := comm.NewClient(bus.Connect())
	go client.Run(ctx)
	reqCtx, reqCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer reqCancel()
	reply, err := client.DoWait(reqCtx, msgs.Reset)
	require.NoError(t, err)
	assert.Equal(t, msgs.Acknowledgement, reply)
	eventually(t, func() bool { return board.restarts() == 1 })
	assert.True(t, fw.State.ResetRequested())

	cancel()
	assert.NoError(t, <-doneCh)
}

func TestWatchdogFedByLoop(t *testing.T) {
	bus := mem.NewBus()
	board := &testBoard{wd: &testWatchdog{}}
	fw := New(testConfig(), bus, board)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- fw.Run(ctx) }()

	eventually(t, func() bool { return board.wd.started.Load() })
	fed := board.wd.fed.Load()
	eventually(t, func() bool { return board.wd.fed.Load() > fed })
	cancel()
	assert.NoError(t, <-doneCh)
}

func TestSoftWatchdog(t *testing.T) {
	bitCh := make(chan struct{}, 1)
	wd := NewSoftWatchdog(100*time.Millisecond, func() { bitCh <- struct{}{} })
	wd.Feed()
	wd.Start()
	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		wd.Feed()
	}
	select {
	case <-bitCh:
		t.Fatal("bite while fed")
	default:
	}
	select {
	case <-bitCh:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no bite")
	}
	wd.Stop()
}

func TestHostBoardRestart(t *testing.T) {
	board := NewHostBoard(0)
	assert.Nil(t, board.Watchdog())
	board.Restart()
	board.Restart()
	select {
	case <-board.Restarted():
	default:
		t.Fatal("not restarted")
	}
}

func TestConfigTransports(t *testing.T) {
	conf := NewConfig()
	for _, u := range []string{"mem:", "ws://:0/usb", "serial:///dev/ttyGS0?baud=9600"} {
		conf.TransportURL = u
		tr, err := conf.NewTransport()
		require.NoError(t, err, u)
		assert.NotNil(t, tr)
	}
	conf.TransportURL = "tcp://localhost"
	_, err := conf.NewTransport()
	assert.Error(t, err)

	conf.TransportURL = "mem:"
	conf.Device.MaxPacketSize = 0
	tr, err := conf.NewTransport()
	require.NoError(t, err)
	assert.Equal(t, comm.PacketSize, tr.MaxPacketSize())

	vid, pid, err := ParseUSBID("1209:0001")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1209), vid)
	assert.Equal(t, uint16(1), pid)
	_, _, err = ParseUSBID("xyz")
	assert.Error(t, err)
}

type testWatchdog struct {
	started atomic.Bool
	fed     atomic.Int64
}

func (w *testWatchdog) Start() { w.started.Store(true) }
func (w *testWatchdog) Feed()  { w.fed.Add(1) }

type testBoard struct {
	wd      *testWatchdog
	lock    sync.Mutex
	restart int
}

func (b *testBoard) Watchdog() Watchdog {
	if b.wd == nil {
		return nil
	}
	return b.wd
}

func (b *testBoard) Restart() {
	b.lock.Lock()
	b.restart++
	b.lock.Unlock()
}

func (b *testBoard) restarts() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.restart
}

func eventually(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
