// Package comm provides the L0 link between the host and the device.
package comm

// The L0 link carries a small set of enum messages (see package msgs)
// over the USB bulk endpoints of a CDC-ACM style device.
//
// Every message is serialized into a fixed buffer, COBS encoded and
// terminated with 0x00, then written in packets of at most 64 bytes.
// The receiving side feeds packets into an Accumulator which resyncs on
// the next delimiter after any corruption, so a lost packet costs at
// most the frame it belonged to.
//
// On the device, the InboundPump and OutboundPump move messages between
// the transport and two bounded Mailboxes, and share a LinkState with
// the application:
//
//   - Connected follows the transport and gates outbound writes.
//   - AckPending is set by the application when a reset is requested.
//   - ResetRequested is set by the OutboundPump only after an
//     Acknowledgement has been fully written while AckPending is set.
//
// The restart is therefore never performed before the host has been
// sent its acknowledgement.
//
// Producer: host (Incoming), device (Outgoing)
// Consumer: device (Incoming), host (Outgoing)
