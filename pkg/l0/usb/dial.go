package usb

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"go.bug.st/serial"
	"golang.org/x/net/websocket"
)

// DefaultBaudRate is used when a serial URL doesn't specify one.
const DefaultBaudRate = 115200

// Dial opens a byte stream to a device from the host side.
// Supported URLs:
//
//	ws://host:port/usb
//	serial:///dev/ttyACM0?baud=115200
func Dial(rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid device URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		origin := "http://localhost/"
		if u.Scheme == "wss" {
			origin = "https://localhost/"
		}
		conn, err := websocket.Dial(rawURL, "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	case "serial":
		name, mode, err := ParseSerialURL(u)
		if err != nil {
			return nil, err
		}
		return serial.Open(name, mode)
	default:
		return nil, fmt.Errorf("unknown device URL scheme: %q", u.Scheme)
	}
}

// ParseSerialURL extracts the port name and mode from a serial URL.
func ParseSerialURL(u *url.URL) (string, *serial.Mode, error) {
	name := u.Path
	if u.Host != "" {
		name = u.Host + u.Path
	}
	if name == "" {
		return "", nil, fmt.Errorf("missing serial port in %q", u.String())
	}
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if val := u.Query().Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return "", nil, fmt.Errorf("invalid baud rate %q", val)
		}
		mode.BaudRate = baud
	}
	return name, mode, nil
}
