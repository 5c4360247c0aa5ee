package firmware

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/usb"
	"github.com/robotalks/l0link/pkg/l0/usb/mem"
	"github.com/robotalks/l0link/pkg/l0/usb/serial"
	"github.com/robotalks/l0link/pkg/l0/usb/websocket"
)

// Config provides options of the firmware.
type Config struct {
	// TransportURL selects the USB transport:
	//   ws://:8080/usb
	//   serial:///dev/ttyGS0?baud=115200
	//   mem:
	TransportURL string

	MailboxSize      int
	AccumulatorSize  int
	EncodeBufferSize int
	ChunkTimeout     time.Duration
	ResetGrace       time.Duration

	// WatchdogTimeout enables the watchdog if non-zero.
	WatchdogTimeout time.Duration
	// WatchdogUnleashDelay is the delay after boot before the watchdog starts.
	WatchdogUnleashDelay time.Duration

	LoopInterval time.Duration
	// HeartbeatInterval enables periodic logging from the main loop if non-zero.
	HeartbeatInterval time.Duration

	Device usb.DeviceInfo
}

var defaultConfig = Config{
	TransportURL:         "ws://:8080" + websocket.DefaultPath,
	MailboxSize:          comm.MailboxSize,
	AccumulatorSize:      comm.AccumulatorSize,
	EncodeBufferSize:     comm.EncodeBufferSize,
	ChunkTimeout:         comm.DefaultChunkTimeout,
	ResetGrace:           100 * time.Millisecond,
	WatchdogTimeout:      time.Second,
	WatchdogUnleashDelay: 2 * time.Second,
	LoopInterval:         100 * time.Millisecond,
	Device:               usb.DefaultDeviceInfo(),
}

func init() {
	if val := os.Getenv("L0_TRANSPORT"); val != "" {
		defaultConfig.TransportURL = val
	}
	if val := os.Getenv("L0_WATCHDOG"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.WatchdogTimeout = d
		}
	}
	if val := os.Getenv("L0_LOOP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.LoopInterval = d
		}
	}
	if val := os.Getenv("L0_HEARTBEAT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.HeartbeatInterval = d
		}
	}
	if val := os.Getenv("L0_SERIAL_NUMBER"); val != "" {
		defaultConfig.Device.SerialNumber = val
	}
	if val := os.Getenv("L0_USB_ID"); val != "" {
		if vid, pid, err := ParseUSBID(val); err == nil {
			defaultConfig.Device.VendorID, defaultConfig.Device.ProductID = vid, pid
		}
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.TransportURL, "transport", defaultConfig.TransportURL, "USB transport URL (ws://, serial://, mem:).")
	flag.IntVar(&defaultConfig.MailboxSize, "mailbox-size", defaultConfig.MailboxSize, "Capacity of each message mailbox.")
	flag.DurationVar(&defaultConfig.ChunkTimeout, "chunk-timeout", defaultConfig.ChunkTimeout, "Timeout of writing a single USB packet.")
	flag.DurationVar(&defaultConfig.ResetGrace, "reset-grace", defaultConfig.ResetGrace, "Delay before restart once acknowledged.")
	flag.DurationVar(&defaultConfig.WatchdogTimeout, "watchdog", defaultConfig.WatchdogTimeout, "Watchdog timeout, 0 disables the watchdog.")
	flag.DurationVar(&defaultConfig.WatchdogUnleashDelay, "watchdog-delay", defaultConfig.WatchdogUnleashDelay, "Delay after boot before the watchdog starts.")
	flag.DurationVar(&defaultConfig.LoopInterval, "loop-interval", defaultConfig.LoopInterval, "Main loop interval.")
	flag.DurationVar(&defaultConfig.HeartbeatInterval, "heartbeat", defaultConfig.HeartbeatInterval, "Heartbeat logging interval, 0 disables.")
	flag.StringVar(&defaultConfig.Device.SerialNumber, "serial-number", defaultConfig.Device.SerialNumber, "USB serial number string.")
	flag.Func("usb-id", "USB vendor and product id in hex, e.g. c0de:cafe.", func(val string) (err error) {
		defaultConfig.Device.VendorID, defaultConfig.Device.ProductID, err = ParseUSBID(val)
		return
	})
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewTransport creates the USB transport using current config.
func (c *Config) NewTransport() (comm.Transport, error) {
	parsedURL, err := url.Parse(c.TransportURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transport URL: %w", err)
	}
	switch parsedURL.Scheme {
	case "ws":
		t := websocket.New(parsedURL.Host, c.Device)
		if parsedURL.Path != "" {
			t.Path = parsedURL.Path
		}
		return t, nil
	case "serial":
		return serial.New(c.TransportURL)
	case "mem":
		bus := mem.NewBus()
		if c.Device.MaxPacketSize > 0 {
			bus.PacketSize = c.Device.MaxPacketSize
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unknown transport URL scheme: %q", parsedURL.Scheme)
	}
}

// ParseUSBID parses "vid:pid" in hex, e.g. "c0de:cafe".
func ParseUSBID(s string) (vid, pid uint16, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid USB id %q", s)
	}
	v, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor id %q: %w", parts[0], err)
	}
	p, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q: %w", parts[1], err)
	}
	return uint16(v), uint16(p), nil
}
