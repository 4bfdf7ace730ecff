package adf7021

import (
	"encoding/binary"
	"sync"

	"github.com/satlab/bluebox/pkg"
)

// SimVersion is the silicon revision reported by Sim.
const SimVersion = 0x2104

// Sim is an in-memory ADF7021 implementing Bus.
type Sim struct {
	mutex    sync.Mutex
	regs     [NumRegisters]Reg
	writes   int
	selected uint8
	rssi     uint16
	afc      uint16
	enabled  bool
}

// NewSim creates a simulated chip reporting an idle channel.
func NewSim() *Sim {
	// Gain mode 7, -110 dBm.
	return &Sim{rssi: 7<<7 | 40, afc: 0x0800}
}

// Tx implements Bus. Four-byte writes latch a register; a two-byte
// transfer returns the readback selected by the last R7 write.
func (s *Sim) Tx(w, r []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch {
	case len(w) == 4 && len(r) == 0:
		reg := Reg(binary.BigEndian.Uint32(w))
		s.regs[reg.Addr()] = reg
		s.writes++
		if reg.Addr() == RegReadback {
			s.selected = uint8(reg>>4) & 0x1F
		}
		return nil
	case len(r) == 2:
		binary.BigEndian.PutUint16(r, s.readback())
		return nil
	default:
		return pkg.ErrProtocol
	}
}

func (s *Sim) readback() uint16 {
	switch s.selected {
	case ReadbackRSSI:
		return s.rssi
	case ReadbackAFC:
		return s.afc
	case ReadbackVersion:
		return SimVersion
	default:
		return 0
	}
}

// SetChipEnable implements ChipEnabler.
func (s *Sim) SetChipEnable(on bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.enabled = on
	return nil
}

// Enabled reports the CE pin state.
func (s *Sim) Enabled() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.enabled
}

// SetRSSI sets the raw RSSI readback word.
func (s *Sim) SetRSSI(rb uint16) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rssi = rb
}

// Register returns the last word written to addr.
func (s *Sim) Register(addr uint8) Reg {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.regs[addr&0xF]
}

// Writes returns the number of register writes received.
func (s *Sim) Writes() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writes
}
