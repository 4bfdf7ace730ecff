package bluebox

import "fmt"

// USB identifiers of the bluebox device.
const (
	VendorID  = 0x1d50
	ProductID = 0x6666

	// Data endpoints of the payload relay.
	EndpointDataIn  = 0x81
	EndpointDataOut = 0x02
)

// Opcode is the bRequest value of a bluebox control request. The values are
// shared with host tooling and must not change.
type Opcode uint8

// Request opcodes.
const (
	OpRegister   Opcode = 0x01
	OpFrequency  Opcode = 0x02
	OpModIndex   Opcode = 0x03
	OpCSMARSSI   Opcode = 0x04
	OpPower      Opcode = 0x05
	OpAFC        Opcode = 0x06
	OpIFBW       Opcode = 0x07
	OpTraining   Opcode = 0x08
	OpSyncWord   Opcode = 0x09
	OpRxTxMode   Opcode = 0x0A
	OpData       Opcode = 0x10 // declared by host tooling, never routed
	OpBootloader Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	OpRegister:   "REGISTER",
	OpFrequency:  "FREQUENCY",
	OpModIndex:   "MODINDEX",
	OpCSMARSSI:   "CSMA_RSSI",
	OpPower:      "POWER",
	OpAFC:        "AFC",
	OpIFBW:       "IFBW",
	OpTraining:   "TRAINING",
	OpSyncWord:   "SYNCWORD",
	OpRxTxMode:   "RXTX_MODE",
	OpData:       "DATA",
	OpBootloader: "BOOTLOADER",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint8(o))
}

// Direction is the data-stage direction of a control request, encoded as
// bit 7 of bmRequestType.
type Direction uint8

// Directions.
const (
	DirOut Direction = 0x00 // host to device
	DirIn  Direction = 0x80 // device to host
)

func (d Direction) String() string {
	if d == DirIn {
		return "IN"
	}
	return "OUT"
}

// Transaction is one decoded control request.
type Transaction struct {
	Direction Direction
	Opcode    Opcode
	Value     uint16 // wValue
	Index     uint16 // wIndex
	Length    uint16 // wLength
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s %s value=0x%04X length=%d", t.Direction, t.Opcode, t.Value, t.Length)
}
