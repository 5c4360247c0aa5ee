package firmware

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// Watchdog restarts the device unless it is fed in time once started.
type Watchdog interface {
	Start()
	Feed()
}

// Board provides the hardware services used by the firmware.
type Board interface {
	// Watchdog returns nil if the board has no watchdog.
	Watchdog() Watchdog
	// Restart resets the device. It doesn't return on real hardware.
	Restart()
}

// SoftWatchdog is a timer based Watchdog.
type SoftWatchdog struct {
	Timeout time.Duration
	OnBite  func()

	lock  sync.Mutex
	timer *time.Timer
}

// NewSoftWatchdog creates a SoftWatchdog.
func NewSoftWatchdog(timeout time.Duration, onBite func()) *SoftWatchdog {
	return &SoftWatchdog{Timeout: timeout, OnBite: onBite}
}

// Start implements Watchdog.
func (w *SoftWatchdog) Start() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.Timeout, w.bite)
	}
}

// Feed implements Watchdog.
func (w *SoftWatchdog) Feed() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.Timeout)
	}
}

// Stop disarms the watchdog.
func (w *SoftWatchdog) Stop() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *SoftWatchdog) bite() {
	glog.Error("watchdog bite")
	if w.OnBite != nil {
		w.OnBite()
	}
}

// HostBoard emulates a board in a host process. Restart is reported
// through Restarted and the caller boots the firmware again.
type HostBoard struct {
	watchdog  *SoftWatchdog
	restartCh chan struct{}
	once      sync.Once
}

// NewHostBoard creates a HostBoard, with a SoftWatchdog if timeout is non-zero.
func NewHostBoard(watchdogTimeout time.Duration) *HostBoard {
	b := &HostBoard{restartCh: make(chan struct{})}
	if watchdogTimeout > 0 {
		b.watchdog = NewSoftWatchdog(watchdogTimeout, b.Restart)
	}
	return b
}

// Watchdog implements Board.
func (b *HostBoard) Watchdog() Watchdog {
	if b.watchdog == nil {
		return nil
	}
	return b.watchdog
}

// Restart implements Board.
func (b *HostBoard) Restart() {
	b.once.Do(func() {
		if b.watchdog != nil {
			b.watchdog.Stop()
		}
		close(b.restartCh)
	})
}

// Restarted is closed once Restart is called.
func (b *HostBoard) Restarted() <-chan struct{} {
	return b.restartCh
}

// Shutdown disarms the board without restarting.
func (b *HostBoard) Shutdown() {
	if b.watchdog != nil {
		b.watchdog.Stop()
	}
}
