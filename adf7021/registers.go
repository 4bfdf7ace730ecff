package adf7021

import (
	"fmt"
	"math"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/pkg"
)

// Register addresses.
const (
	RegN            = 0
	RegVCOOsc       = 1
	RegTxMod        = 2
	RegTxRxClk      = 3
	RegDemod        = 4
	RegIFFilter     = 5
	RegIFFineCal    = 6
	RegReadback     = 7
	RegPowerDown    = 8
	RegAGC          = 9
	RegAFC          = 10
	RegSWD          = 11
	RegSWDThreshold = 12
	Reg3FSK4FSK     = 13
	RegTestDAC      = 14
	RegTestMode     = 15

	NumRegisters = 16
)

var registerNames = [NumRegisters]string{
	"N", "VCO_OSC", "TXMOD", "TXRXCLK", "DEMOD", "IFFILTER", "IFFINECAL", "READBACK",
	"PWRDWN", "AGC", "AFC", "SWD", "SWDTHRESHOLD", "3FSK4FSK", "TESTDAC", "TESTMODE",
}

// RegisterName returns the datasheet name of a register address.
func RegisterName(addr uint8) string {
	if int(addr) < NumRegisters {
		return registerNames[addr]
	}
	return fmt.Sprintf("R%d", addr)
}

// Readback selects, written to R7 bits 8:4.
const (
	ReadbackRSSI    = 0x14
	ReadbackAFC     = 0x16
	ReadbackVersion = 0x1C
)

// Test mode patterns for R15 bits 10:8.
const (
	TestPatternCarrier = 1
	TestPatternHigh    = 2
	TestPatternLow     = 3
	TestPattern1010    = 4
	TestPatternPN9     = 5
	TestPatternSWD     = 6
)

// Sync word lengths for R11.
const (
	SyncLength12 = 0
	SyncLength16 = 1
	SyncLength20 = 2
	SyncLength24 = 3
)

// Sync word error tolerances for R11, in bit errors.
const (
	SyncTolerance0 = 0
	SyncTolerance1 = 1
	SyncTolerance2 = 2
	SyncTolerance3 = 3
)

// Frequency limits of the synthesizer.
const (
	MinFrequency = 80000000
	MaxFrequency = 960000000
)

// DefaultXtal is the reference crystal of the bluebox board in Hz.
const DefaultXtal = 19200000

// ifOffset is the receiver IF; the LO sits this far below the carrier in RX.
const ifOffset = 100000

// vcoDivideLimit is the frequency below which the RF divide-by-2 is used.
const vcoDivideLimit = 480000000

// Reg is one 32-bit register word including its address bits.
type Reg uint32

// Addr returns the register address.
func (r Reg) Addr() uint8 {
	return uint8(r & 0xF)
}

func (r Reg) String() string {
	return fmt.Sprintf("%s=0x%08X", RegisterName(r.Addr()), uint32(r))
}

func reg(addr uint8, fields ...uint32) Reg {
	v := uint32(addr) & 0xF
	for _, f := range fields {
		v |= f
	}
	return Reg(v)
}

// Program is a register set in the order it must be written.
type Program []Reg

// Compute derives the register set for cfg. tx selects the transmit
// synthesizer setting; otherwise the LO is offset by the receiver IF.
func Compute(cfg bluebox.Config, xtal uint32, tx bool) (Program, error) {
	if xtal == 0 {
		return nil, fmt.Errorf("xtal: %w", pkg.ErrInvalidParameter)
	}
	if cfg.Freq < MinFrequency || cfg.Freq > MaxFrequency {
		return nil, fmt.Errorf("frequency %d Hz: %w", cfg.Freq, pkg.ErrOutOfRange)
	}
	if cfg.Speed == 0 {
		return nil, fmt.Errorf("baud rate 0: %w", pkg.ErrOutOfRange)
	}
	if cfg.PASetting > 63 {
		return nil, fmt.Errorf("pa setting %d: %w", cfg.PASetting, pkg.ErrOutOfRange)
	}
	if cfg.IFBW > 2 {
		return nil, fmt.Errorf("if bandwidth %d: %w", cfg.IFBW, pkg.ErrOutOfRange)
	}
	if cfg.SWLen > SyncLength24 || cfg.SWTol > SyncTolerance3 {
		return nil, fmt.Errorf("sync word length %d tolerance %d: %w", cfg.SWLen, cfg.SWTol, pkg.ErrOutOfRange)
	}

	n, divide := synthesizer(cfg.Freq, xtal, tx)
	r1 := vcoOsc(divide)

	clk, demClk, err := clocks(cfg.Speed, xtal)
	if err != nil {
		return nil, err
	}

	// modindex is the modulation index in 1/32 steps.
	deviation := uint64(cfg.ModIndex) * uint64(cfg.Speed) / 64
	devReg := deviation << 16 / uint64(xtal)
	if devReg > 0x1FF {
		return nil, fmt.Errorf("deviation %d Hz: %w", deviation, pkg.ErrOutOfRange)
	}

	return Program{
		r1,
		clk,
		n,
		txMod(cfg.PASetting, uint32(devReg)),
		demod(deviation, cfg.Speed, demClk, cfg.IFBW),
		afc(cfg, xtal),
		reg(RegSWD, uint32(cfg.SWLen)<<4, uint32(cfg.SWTol)<<6, (cfg.SyncWord&0xFFFFFF)<<8),
		reg(RegSWDThreshold, 1<<4, 1<<6, 0xFF<<8),
	}, nil
}

// txRxBit is the R0 bit selecting receive.
const txRxBit = 1 << 27

// synthesizer returns R0 and whether the RF divide-by-2 is needed.
func synthesizer(freq, xtal uint32, tx bool) (Reg, bool) {
	lo := uint64(freq)
	rx := uint32(txRxBit)
	if tx {
		rx = 0
	} else {
		lo -= ifOffset
	}
	divide := lo < vcoDivideLimit
	if divide {
		lo *= 2
	}

	nInt := lo / uint64(xtal)
	nFrac := (lo % uint64(xtal)) << 15 / uint64(xtal)

	// UART mode on, MUXOUT = digital lock detect.
	return reg(RegN,
		uint32(nFrac&0x7FFF)<<4,
		uint32(nInt&0xFF)<<19,
		rx,
		1<<28,
		2<<29), divide
}

func vcoOsc(divide bool) Reg {
	var div uint32
	if divide {
		div = 1 << 18
	}
	// R counter 1, XOSC on, CP 0.9 mA, VCO on, VCO bias 8.
	return reg(RegVCOOsc, 1<<4, 1<<12, 2<<15, 1<<17, div, 8<<19)
}

// clocks returns R3 and the demodulator clock.
func clocks(baud, xtal uint32) (Reg, uint32, error) {
	// Baseband offset clock must sit between 1 and 2 MHz.
	bbos := uint32(0)
	for bbos < 3 && xtal/(4<<bbos) > 2000000 {
		bbos++
	}

	const demDiv = 4
	demClk := xtal / demDiv

	cdr := (demClk + 16*baud) / (32 * baud)
	if cdr == 0 || cdr > 0xFF {
		return 0, 0, fmt.Errorf("baud rate %d: %w", baud, pkg.ErrOutOfRange)
	}

	// Sequencer clock near 100 kHz, AGC clock near 8 kHz.
	seq := min(max(xtal/100000, 1), 0xFF)
	agc := min(max(xtal/seq/8000, 1), 0x3F)

	return reg(RegTxRxClk, bbos<<4, demDiv<<6, cdr<<10, seq<<18, agc<<26), demClk, nil
}

func txMod(pa uint8, devReg uint32) Reg {
	// 2FSK, PA on, ramp rate 7, bias 9 uA.
	return reg(RegTxMod, 1<<7, 7<<8, 3<<11, uint32(pa)<<13, devReg<<19)
}

func demod(deviation uint64, baud, demClk uint32, ifbw uint8) Reg {
	// Discriminator bandwidth for the correlator demodulator.
	k := max(math.Round(100000/float64(max(deviation, 1))), 1)
	disc := min(uint32(float64(demClk)*k/800000), 0x3FF)

	// Post-demodulator filter at 0.75 x baud.
	post := min(uint32(math.Round(float64(baud)*0.75*math.Pi*2048/float64(demClk))), 0x3FF)

	return reg(RegDemod, 1<<4, 1<<7, disc<<10, post<<20, uint32(ifbw)<<30)
}

func afc(cfg bluebox.Config, xtal uint32) Reg {
	scaling := uint32((uint64(1) << 24) * 500 / uint64(xtal))
	return reg(RegAFC,
		uint32(cfg.AFCEnable&1)<<4,
		(scaling&0xFFF)<<5,
		uint32(cfg.AFCKI&0xF)<<17,
		uint32(cfg.AFCKP&0x7)<<21,
		uint32(cfg.AFCRange)<<24)
}

// ReadbackSelect returns the R7 word requesting a readback.
func ReadbackSelect(sel uint8) Reg {
	return reg(RegReadback, uint32(sel)<<4)
}

// TestMode returns the R15 word selecting a test pattern.
func TestMode(pattern uint8) Reg {
	return reg(RegTestMode, uint32(pattern)<<8)
}

// gainCorrection maps the RSSI readback gain mode to a correction in
// half-dB steps.
var gainCorrection = [16]int{86, 0, 0, 0, 58, 38, 24, 0, 0, 0, 0, 0, 0, 0, 0, 0}

// RSSIdBm converts an RSSI readback word to dBm.
func RSSIdBm(rb uint16) int {
	rssi := int(rb & 0x7F)
	gc := int(rb&0x780) >> 7
	return int(math.RoundToEven(float64(rssi+gainCorrection[gc])*0.5 - 130))
}
