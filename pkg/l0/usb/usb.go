// Package usb describes the USB identity of the device and provides
// host side access to device transports.
package usb

import (
	"fmt"

	"github.com/robotalks/l0link/pkg/version"
)

// DeviceInfo is the identity reported in the device descriptor.
type DeviceInfo struct {
	VendorID     uint16 `json:"vid"`
	ProductID    uint16 `json:"pid"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	SerialNumber string `json:"serial"`
	// Class codes of the IAD composite device.
	Class    uint8 `json:"class"`
	SubClass uint8 `json:"subclass"`
	Protocol uint8 `json:"protocol"`
	// MaxPacketSize of the bulk endpoints.
	MaxPacketSize int `json:"max_packet_size"`
}

// Defaults of the device identity.
const (
	DefaultVendorID     uint16 = 0xc0de
	DefaultProductID    uint16 = 0xcafe
	DefaultManufacturer        = "Robotalks"
	DefaultSerialNumber        = "1"

	ClassMiscellaneous uint8 = 0xef
	SubClassCommon     uint8 = 0x02
	ProtocolIAD        uint8 = 0x01

	FullSpeedPacketSize = 64
)

// DefaultDeviceInfo returns the identity with the build revision as product.
func DefaultDeviceInfo() DeviceInfo {
	return DeviceInfo{
		VendorID:      DefaultVendorID,
		ProductID:     DefaultProductID,
		Manufacturer:  DefaultManufacturer,
		Product:       version.ProductDescription(),
		SerialNumber:  DefaultSerialNumber,
		Class:         ClassMiscellaneous,
		SubClass:      SubClassCommon,
		Protocol:      ProtocolIAD,
		MaxPacketSize: FullSpeedPacketSize,
	}
}

// String implements fmt.Stringer.
func (i DeviceInfo) String() string {
	return fmt.Sprintf("%04x:%04x %s %s [%s]", i.VendorID, i.ProductID, i.Manufacturer, i.Product, i.SerialNumber)
}
