package hal

import (
	"context"
)

// SetupPacket represents a USB SETUP packet in the HAL layer.
// This is a fixed-size, zero-allocation structure for SETUP transactions.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// DeviceHAL is the hardware side of the bluebox control stack.
//
// Enumeration is handled below this interface (by the USB controller
// firmware or the bus simulator), so the stack only sees vendor control
// requests on EP0 and payloads on the data endpoints.
type DeviceHAL interface {
	// Init prepares the controller. The context can cancel initialization.
	Init(ctx context.Context) error

	// Start attaches to the bus.
	Start() error

	// Stop detaches from the bus and releases resources.
	Stop() error

	// Control Endpoint (EP0) Operations

	// ReadSetup reads a SETUP packet from EP0.
	// Blocks until a SETUP packet is available or the context is done.
	ReadSetup(ctx context.Context, out *SetupPacket) error

	// WriteEP0 sends the IN data stage of the current control transfer.
	// An empty data slice sends a zero-length packet.
	WriteEP0(ctx context.Context, data []byte) error

	// ReadEP0 reads the OUT data stage of the current control transfer.
	// Returns the number of bytes read into buf, which is 0 once the data
	// stage is exhausted.
	ReadEP0(ctx context.Context, buf []byte) (int, error)

	// StallEP0 stalls the control endpoint to indicate an error.
	StallEP0() error

	// AckEP0 completes the status stage of a successful control transfer.
	AckEP0() error

	// Data Endpoint Operations

	// Read reads data from an OUT endpoint into buf.
	// Blocks until data is received or the context is done.
	Read(ctx context.Context, address uint8, buf []byte) (int, error)

	// Write writes data to an IN endpoint.
	Write(ctx context.Context, address uint8, data []byte) (int, error)

	// IsConnected returns true if a host is attached.
	IsConnected() bool
}
