// Package bluebox implements the control protocol of the bluebox radio
// bridge.
//
// A host configures the transceiver with class requests addressed to
// interface 0. Each request is decoded into a [Transaction] and routed by
// (opcode, direction) to one handler variant:
//
//   - raw register access, which bypasses the configuration mirror
//   - RX/TX mode switching
//   - configuration fields, which update the [Mirror] and reprogram the
//     transceiver from it
//   - declared but inert stubs (training, sync word)
//   - bootloader entry
//
// Requests that match no route are acknowledged and do nothing.
//
// The [Mirror] holds the last commanded radio parameters. After every OUT
// field write the [Dispatcher] hands a snapshot of the whole mirror to the
// [Programmer], so the transceiver registers always match the mirror.
package bluebox
