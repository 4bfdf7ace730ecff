package device

import (
	"fmt"

	"github.com/satlab/bluebox/device/hal"
)

// bmRequestType fields.
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F

	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
)

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = hal.SetupPacketSize

// SetupPacket is a decoded control request as seen by a [ControlHandler].
type SetupPacket struct {
	RequestType uint8  // bmRequestType
	Request     uint8  // bRequest, the bluebox opcode
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength, size of the data stage
}

// ClassRequestSetup fills out as a class request addressed to interface
// index. Every bluebox request takes this form (bmRequestType 0x21 or 0xA1).
func ClassRequestSetup(out *SetupPacket, in bool, request uint8, value, index, length uint16) {
	out.RequestType = RequestTypeClass | RequestRecipientInterface
	if in {
		out.RequestType |= RequestDirectionDeviceToHost
	}
	out.Request = request
	out.Value = value
	out.Index = index
	out.Length = length
}

// FromHAL copies p into s.
func (s *SetupPacket) FromHAL(p *hal.SetupPacket) {
	*s = SetupPacket(*p)
}

// ToHAL copies s into p.
func (s *SetupPacket) ToHAL(p *hal.SetupPacket) {
	*p = hal.SetupPacket(*s)
}

// Direction returns the direction bit of bmRequestType.
func (s *SetupPacket) Direction() uint8 {
	return s.RequestType & RequestTypeDirectionMask
}

// IsDeviceToHost reports whether the data stage is IN.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.Direction() == RequestDirectionDeviceToHost
}

// IsHostToDevice reports whether the data stage, if any, is OUT.
func (s *SetupPacket) IsHostToDevice() bool {
	return s.Direction() == RequestDirectionHostToDevice
}

// Type returns the type bits of bmRequestType (standard, class or vendor).
func (s *SetupPacket) Type() uint8 {
	return s.RequestType & RequestTypeTypeMask
}

// IsClass reports whether this is a class request.
func (s *SetupPacket) IsClass() bool {
	return s.Type() == RequestTypeClass
}

// Recipient returns the recipient bits of bmRequestType.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & RequestTypeRecipientMask
}

// IsInterfaceRecipient reports whether the request is addressed to an
// interface.
func (s *SetupPacket) IsInterfaceRecipient() bool {
	return s.Recipient() == RequestRecipientInterface
}

// String returns a human-readable form of the packet for logs.
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	return fmt.Sprintf("setup %s type=0x%02X req=0x%02X value=0x%04X index=%d len=%d",
		dir, s.RequestType, s.Request, s.Value, s.Index, s.Length)
}
