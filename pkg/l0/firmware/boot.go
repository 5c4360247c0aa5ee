package firmware

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/l0link/pkg/l0/comm"
)

// TransportFactory creates the transport for every boot.
type TransportFactory func() (comm.Transport, error)

// Boot runs the firmware on a HostBoard until ctx is done. Each restart
// of the board boots a new Firmware with fresh link state, which the
// host observes as the device re-enumerating.
func Boot(ctx context.Context, conf *Config, newTransport TransportFactory) error {
	for boots := 1; ; boots++ {
		t, err := newTransport()
		if err != nil {
			return err
		}
		board := NewHostBoard(conf.WatchdogTimeout)
		bootCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-board.Restarted():
				cancel()
			case <-bootCtx.Done():
			}
		}()
		glog.V(1).Infof("boot #%d", boots)
		err = New(conf, t, board).Run(bootCtx)
		cancel()
		board.Shutdown()

		select {
		case <-board.Restarted():
			if ctx.Err() == nil {
				glog.Info("Device restarted")
				continue
			}
		default:
		}
		return err
	}
}
