// Package msgs defines the L0 link message set.
package msgs

// L0 link messages are exchanged between the host and the device over
// the USB bulk endpoints.
//
// Each message is an enum without payload, encoded as the variant index
// in unsigned LEB128. The encoded message is then COBS framed and
// terminated with a single 0x00 byte:
//
//   Reset          (host -> device)  01 01 00
//   ExampleMessage (host -> device)  02 01 00
//   Acknowledgement (device -> host) 01 01 00
//
// Producer: host (Incoming), device (Outgoing)
// Consumer: device (Incoming), host (Outgoing)
