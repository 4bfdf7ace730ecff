// Package fifo implements a device HAL over named pipes.
//
// The HAL lets the bluebox daemon run without USB hardware: a host process
// (bbctl with --bus-dir, or the tests) talks to it through FIFOs in a shared
// bus directory.
//
// # Layout
//
//	/tmp/bluebox-bus/                # Bus directory (shared with host)
//	└── device-{uuid}/               # Device subdirectory (unique per device)
//	    ├── connection               # Connection signaling (device → host)
//	    ├── host_to_device           # SETUP messages from host
//	    ├── device_to_host           # DATA, ACK and STALL responses
//	    ├── ep1_in, ep1_out          # Endpoint 1 data FIFOs
//	    └── ...                      # (up to ep15_in/ep15_out)
//
// # Messages
//
// Every message is framed as [type, len_lo, len_hi, payload...]. A control
// transfer is one SETUP message whose payload is
// [address, setup(8), out_data...]. The device answers an OUT transfer with
// ACK or STALL, and an IN transfer with a DATA message followed by ACK, or
// with STALL alone.
//
// The connection FIFO carries 0x01 when the device attaches and 0x00 when
// it detaches.
package fifo
