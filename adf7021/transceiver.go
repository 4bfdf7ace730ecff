package adf7021

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/pkg"
)

// Bus is a full-duplex serial link to the chip. Tx writes w while reading
// into r; either may be nil.
type Bus interface {
	Tx(w, r []byte) error
}

// ChipEnabler is implemented by buses that control the CE pin.
type ChipEnabler interface {
	SetChipEnable(on bool) error
}

// Transceiver programs an ADF7021 over a Bus.
type Transceiver struct {
	mutex sync.Mutex
	bus   Bus
	xtal  uint32

	cfg     bluebox.Config
	tx      bool
	latched [NumRegisters]Reg
}

// New creates a driver for a chip clocked from xtal Hz.
func New(bus Bus, xtal uint32) *Transceiver {
	if xtal == 0 {
		xtal = DefaultXtal
	}
	return &Transceiver{bus: bus, xtal: xtal}
}

// PowerOn enables the chip, programs cfg and enters receive mode.
func (t *Transceiver) PowerOn(cfg bluebox.Config) error {
	if ce, ok := t.bus.(ChipEnabler); ok {
		if err := ce.SetChipEnable(true); err != nil {
			return fmt.Errorf("chip enable: %w", err)
		}
	}
	if err := t.Configure(cfg); err != nil {
		return err
	}
	return t.SetRxMode()
}

// Configure writes the full register set computed from cfg. The current
// TX/RX mode is kept.
func (t *Transceiver) Configure(cfg bluebox.Config) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	prog, err := Compute(cfg, t.xtal, t.tx)
	if err != nil {
		return err
	}
	for _, r := range prog {
		if err := t.write(r); err != nil {
			return err
		}
	}
	t.cfg = cfg
	pkg.LogDebug(pkg.ComponentRadio, "transceiver configured", "freq", cfg.Freq, "registers", len(prog))
	return nil
}

// SetTxMode retunes the synthesizer for transmit.
func (t *Transceiver) SetTxMode() error {
	return t.setMode(true)
}

// SetRxMode retunes the synthesizer for receive.
func (t *Transceiver) SetRxMode() error {
	return t.setMode(false)
}

func (t *Transceiver) setMode(tx bool) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.cfg.Freq == 0 {
		return pkg.ErrNotConfigured
	}
	n, divide := synthesizer(t.cfg.Freq, t.xtal, tx)
	// The RF divider can flip across the IF offset near its limit.
	if r1 := vcoOsc(divide); r1 != t.latched[RegVCOOsc] {
		if err := t.write(r1); err != nil {
			return err
		}
	}
	if err := t.write(n); err != nil {
		return err
	}
	t.tx = tx
	pkg.LogDebug(pkg.ComponentRadio, "mode set", "tx", tx)
	return nil
}

// IsTx reports whether the chip is in transmit mode.
func (t *Transceiver) IsTx() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.tx
}

// WriteRegister writes a raw register word.
func (t *Transceiver) WriteRegister(value uint32) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.write(Reg(value))
}

// ReadRegister returns register num. Registers 0-15 are write-only on the
// chip, so the last word written by this driver is returned. Larger
// numbers are readback selects and are read from the chip.
func (t *Transceiver) ReadRegister(num uint8) (uint32, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if num < NumRegisters {
		return uint32(t.latched[num]), nil
	}
	rb, err := t.readback(num)
	return uint32(rb), err
}

// Readback reads a 16-bit status word through R7.
func (t *Transceiver) Readback(sel uint8) (uint16, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.readback(sel)
}

// RSSI returns the received signal strength in dBm.
func (t *Transceiver) RSSI() (int, error) {
	rb, err := t.Readback(ReadbackRSSI)
	if err != nil {
		return 0, err
	}
	return RSSIdBm(rb), nil
}

// ChannelClear reports whether the RSSI is at or below the carrier-sense
// threshold of the programmed configuration.
func (t *Transceiver) ChannelClear() (bool, error) {
	dbm, err := t.RSSI()
	if err != nil {
		return false, err
	}
	t.mutex.Lock()
	threshold := int(t.cfg.CSMARSSI)
	t.mutex.Unlock()
	return dbm <= threshold, nil
}

// AFCOffset returns the raw AFC readback word.
func (t *Transceiver) AFCOffset() (uint16, error) {
	return t.Readback(ReadbackAFC)
}

// SetTestMode selects a transmit test pattern. Pattern 0 turns test mode
// off.
func (t *Transceiver) SetTestMode(pattern uint8) error {
	if pattern > TestPatternSWD {
		return fmt.Errorf("test pattern %d: %w", pattern, pkg.ErrOutOfRange)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.write(TestMode(pattern))
}

// Config returns the last successfully programmed configuration.
func (t *Transceiver) Config() bluebox.Config {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.cfg
}

// Version returns the silicon revision readback.
func (t *Transceiver) Version() (uint16, error) {
	return t.Readback(ReadbackVersion)
}

func (t *Transceiver) write(r Reg) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(r))
	if err := t.bus.Tx(buf[:], nil); err != nil {
		return fmt.Errorf("write %s: %w", RegisterName(r.Addr()), err)
	}
	t.latched[r.Addr()] = r
	return nil
}

func (t *Transceiver) readback(sel uint8) (uint16, error) {
	if err := t.write(ReadbackSelect(sel)); err != nil {
		return 0, err
	}
	var w, r [2]byte
	if err := t.bus.Tx(w[:], r[:]); err != nil {
		return 0, fmt.Errorf("readback 0x%02X: %w", sel, err)
	}
	return binary.BigEndian.Uint16(r[:]), nil
}
