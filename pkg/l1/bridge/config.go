package bridge

import (
	"flag"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// Config provides options of the bridge.
type Config struct {
	// DeviceURL is where the device is attached, see usb.Dial.
	DeviceURL string
	// BrokerURL specifies the MQTT broker and topic prefix,
	// e.g. mqtt://host:port/topic-prefix/
	BrokerURL string
	// DeviceID names the device in topics, defaults to the machine id.
	DeviceID string

	RequestTimeout time.Duration
	RedialInterval time.Duration
}

var defaultConfig = Config{
	DeviceURL:      "ws://localhost:8080/usb",
	BrokerURL:      "mqtt://localhost:1883/l0link/",
	RequestTimeout: time.Second,
	RedialInterval: time.Second,
}

func init() {
	if val := os.Getenv("L0_DEVICE_URL"); val != "" {
		defaultConfig.DeviceURL = val
	}
	if val := os.Getenv("L0_MQTT_URL"); val != "" {
		defaultConfig.BrokerURL = val
	}
	if val := os.Getenv("L0_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceURL, "device", defaultConfig.DeviceURL, "Device URL (ws://, serial://).")
	flag.StringVar(&defaultConfig.BrokerURL, "mqtt", defaultConfig.BrokerURL, "MQTT broker URL with topic prefix.")
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device ID used in topics, default is the machine id.")
	flag.DurationVar(&defaultConfig.RequestTimeout, "request-timeout", defaultConfig.RequestTimeout, "Timeout waiting for acknowledgement.")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ID returns DeviceID or the machine id if DeviceID is not set.
func (c *Config) ID() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	id, err := machineid.ProtectedID("l0link")
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return "l0link"
	}
	return id[:12]
}
