// Package msgs provides the L1 envelope of link messages.
package msgs

// L1 messages relay the L0 link to other processes, e.g. over MQTT.
// A LinkMessage is protobuf encoded:
//
//   message LinkMessage {
//     uint32    seq       = 1;
//     Direction direction = 2;  // COMMAND = 0, EVENT = 1
//     string    kind      = 3;  // variant name
//     uint32    variant   = 4;
//     string    error     = 5;
//     int64     timestamp = 6;  // unix nanoseconds
//   }
//
// Commands carry msgs.Incoming, events carry msgs.Outgoing. The seq of
// an event replying to a command is copied from the command.
//
// Producer: L1 bridge (events), L2 clients (commands)
// Consumer: L2 clients (events), L1 bridge (commands)
