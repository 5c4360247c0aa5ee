package usb

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestParseSerialURL(t *testing.T) {
	tests := []struct {
		url  string
		name string
		baud int
	}{
		{"serial:///dev/ttyACM0", "/dev/ttyACM0", DefaultBaudRate},
		{"serial:///dev/ttyUSB1?baud=9600", "/dev/ttyUSB1", 9600},
		{"serial://COM3?baud=57600", "COM3", 57600},
	}
	for _, test := range tests {
		t.Run(test.url, func(t *testing.T) {
			u, err := url.Parse(test.url)
			require.NoError(t, err)
			name, mode, err := ParseSerialURL(u)
			require.NoError(t, err)
			assert.Equal(t, test.name, name)
			assert.Equal(t, test.baud, mode.BaudRate)
			assert.Equal(t, serial.NoParity, mode.Parity)
		})
	}

	for _, bad := range []string{"serial://", "serial:///dev/tty?baud=x"} {
		u, err := url.Parse(bad)
		require.NoError(t, err)
		_, _, err = ParseSerialURL(u)
		assert.Error(t, err, bad)
	}
}

func TestDialUnknownScheme(t *testing.T) {
	_, err := Dial("ftp://host/dev")
	assert.Error(t, err)
}

func TestDefaultDeviceInfo(t *testing.T) {
	info := DefaultDeviceInfo()
	assert.Equal(t, uint16(0xc0de), info.VendorID)
	assert.Equal(t, uint16(0xcafe), info.ProductID)
	assert.Equal(t, ClassMiscellaneous, info.Class)
	assert.Equal(t, 64, info.MaxPacketSize)
	assert.Contains(t, info.String(), "c0de:cafe")
}
