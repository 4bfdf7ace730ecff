// Package fifo is a host transport for devices served by the named-pipe
// HAL in [github.com/satlab/bluebox/device/hal/fifo].
//
// [Discover] polls a bus directory for device-{uuid} subdirectories and
// [OpenDevice] opens the pipes of one of them. Control requests are sent
// as SETUP messages carrying any OUT data stage; the device answers with
// an optional DATA message followed by ACK, or with STALL.
package fifo
