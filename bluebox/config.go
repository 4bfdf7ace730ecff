package bluebox

import (
	"encoding/binary"
	"fmt"

	"github.com/satlab/bluebox/pkg"
)

// Config is the set of radio parameters held by the mirror.
type Config struct {
	Freq      uint32 `koanf:"freq" yaml:"freq" json:"freq"`                // carrier frequency in Hz
	CSMARSSI  int16  `koanf:"csma_rssi" yaml:"csma_rssi" json:"csma_rssi"` // carrier-sense threshold in dBm
	Speed     uint32 `koanf:"speed" yaml:"speed" json:"speed"`             // baud rate
	ModIndex  uint8  `koanf:"modindex" yaml:"modindex" json:"modindex"`
	PASetting uint8  `koanf:"pa_setting" yaml:"pa_setting" json:"pa_setting"`
	AFCRange  uint8  `koanf:"afc_range" yaml:"afc_range" json:"afc_range"`
	AFCKI     uint8  `koanf:"afc_ki" yaml:"afc_ki" json:"afc_ki"`
	AFCKP     uint8  `koanf:"afc_kp" yaml:"afc_kp" json:"afc_kp"`
	AFCEnable uint8  `koanf:"afc_enable" yaml:"afc_enable" json:"afc_enable"`
	IFBW      uint8  `koanf:"if_bw" yaml:"if_bw" json:"if_bw"`
	SyncWord  uint32 `koanf:"sw" yaml:"sw" json:"sw"`
	SWTol     uint8  `koanf:"swtol" yaml:"swtol" json:"swtol"`
	SWLen     uint8  `koanf:"swlen" yaml:"swlen" json:"swlen"`
}

// Compiled-in radio defaults.
const (
	DefaultFreq      = 437425000
	DefaultCSMARSSI  = -95
	DefaultSpeed     = 9600
	DefaultModIndex  = 32
	DefaultPASetting = 20
	DefaultAFCRange  = 10
	DefaultAFCKI     = 11
	DefaultAFCKP     = 4
	DefaultAFCEnable = 1
	DefaultIFBW      = 1
	DefaultSyncWord  = 0x123456
	DefaultSWTol     = 0
	DefaultSWLen     = 3
)

// DefaultConfig returns the compiled-in radio defaults.
func DefaultConfig() Config {
	return Config{
		Freq:      DefaultFreq,
		CSMARSSI:  DefaultCSMARSSI,
		Speed:     DefaultSpeed,
		ModIndex:  DefaultModIndex,
		PASetting: DefaultPASetting,
		AFCRange:  DefaultAFCRange,
		AFCKI:     DefaultAFCKI,
		AFCKP:     DefaultAFCKP,
		AFCEnable: DefaultAFCEnable,
		IFBW:      DefaultIFBW,
		SyncWord:  DefaultSyncWord,
		SWTol:     DefaultSWTol,
		SWLen:     DefaultSWLen,
	}
}

// Field selects one host-settable configuration field.
type Field uint8

// Host-settable fields.
const (
	FieldFreq Field = iota + 1
	FieldCSMARSSI
	FieldModIndex
	FieldPASetting
	FieldAFCEnable
	FieldIFBW
)

// Fields lists every host-settable field.
var Fields = []Field{FieldFreq, FieldCSMARSSI, FieldModIndex, FieldPASetting, FieldAFCEnable, FieldIFBW}

func (f Field) String() string {
	switch f {
	case FieldFreq:
		return "freq"
	case FieldCSMARSSI:
		return "csma_rssi"
	case FieldModIndex:
		return "modindex"
	case FieldPASetting:
		return "pa_setting"
	case FieldAFCEnable:
		return "afc_enable"
	case FieldIFBW:
		return "if_bw"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Width returns the data-stage width of the field in bytes, or 0 for an
// unknown field.
func (f Field) Width() int {
	switch f {
	case FieldFreq:
		return 4
	case FieldCSMARSSI:
		return 2
	case FieldModIndex, FieldPASetting, FieldAFCEnable, FieldIFBW:
		return 1
	default:
		return 0
	}
}

// Encode writes v little-endian into buf using the field width.
func (f Field) Encode(buf []byte, v uint32) {
	switch f.Width() {
	case 4:
		binary.LittleEndian.PutUint32(buf, v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 1:
		buf[0] = uint8(v)
	}
}

// Decode reads a little-endian value of the field width from buf.
func (f Field) Decode(buf []byte) uint32 {
	switch f.Width() {
	case 4:
		return binary.LittleEndian.Uint32(buf)
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf))
	case 1:
		return uint32(buf[0])
	default:
		return 0
	}
}

// Get returns the raw value of a field. CSMARSSI is returned as its
// 16-bit two's complement pattern.
func (c *Config) Get(f Field) (uint32, error) {
	switch f {
	case FieldFreq:
		return c.Freq, nil
	case FieldCSMARSSI:
		return uint32(uint16(c.CSMARSSI)), nil
	case FieldModIndex:
		return uint32(c.ModIndex), nil
	case FieldPASetting:
		return uint32(c.PASetting), nil
	case FieldAFCEnable:
		return uint32(c.AFCEnable), nil
	case FieldIFBW:
		return uint32(c.IFBW), nil
	default:
		return 0, fmt.Errorf("%s: %w", f, pkg.ErrUnknownField)
	}
}

// Set stores v into a field, truncated to the field width.
func (c *Config) Set(f Field, v uint32) error {
	switch f {
	case FieldFreq:
		c.Freq = v
	case FieldCSMARSSI:
		c.CSMARSSI = int16(uint16(v))
	case FieldModIndex:
		c.ModIndex = uint8(v)
	case FieldPASetting:
		c.PASetting = uint8(v)
	case FieldAFCEnable:
		c.AFCEnable = uint8(v)
	case FieldIFBW:
		c.IFBW = uint8(v)
	default:
		return fmt.Errorf("%s: %w", f, pkg.ErrUnknownField)
	}
	return nil
}
