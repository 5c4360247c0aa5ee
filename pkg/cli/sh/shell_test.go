package sh

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/l0link/pkg/l0/firmware"
	"github.com/robotalks/l0link/pkg/l0/msgs"
	"github.com/robotalks/l0link/pkg/l0/usb/mem"
)

func newTestShell() (*Shell, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := mem.NewBus()
	conf := firmware.NewConfig()
	conf.LoopInterval = 10 * time.Millisecond
	conf.HeartbeatInterval = 0
	go firmware.New(conf, bus, firmware.NewHostBoard(0)).Run(ctx)

	s := &Shell{
		Config: &Config{Timeout: 500 * time.Millisecond},
		Dial: func(string) (io.ReadWriteCloser, error) {
			return bus.Connect(), nil
		},
	}
	return s, cancel
}

func TestShellNotConnected(t *testing.T) {
	s := &Shell{Config: NewConfig()}
	assert.Nil(t, s.Link())
	_, err := s.Do(msgs.ExampleMessage)
	assert.ErrorIs(t, err, ErrNotConnected)
	s.Close()
}

func TestShellOpenDoClose(t *testing.T) {
	s, cancel := newTestShell()
	defer cancel()

	require.NoError(t, s.Open("mem:"))
	link := s.Link()
	require.NotNil(t, link)
	assert.Equal(t, "mem:", link.URL)

	reply, err := s.Do(msgs.ExampleMessage)
	require.NoError(t, err)
	assert.Equal(t, msgs.Acknowledgement, reply)

	s.Close()
	assert.Nil(t, s.Link())
	select {
	case <-link.Done():
	default:
		t.Fatal("link still running")
	}
}

func TestShellReopenReplacesLink(t *testing.T) {
	s, cancel := newTestShell()
	defer cancel()

	require.NoError(t, s.Open("mem:"))
	first := s.Link()
	require.NoError(t, s.Open("mem:"))
	<-first.Done()
	assert.NotSame(t, first, s.Link())

	reply, err := s.Do(msgs.ExampleMessage)
	require.NoError(t, err)
	assert.Equal(t, msgs.Acknowledgement, reply)
	s.Close()
}
