package host

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/satlab/bluebox/adf7021"
	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/device"
	"github.com/satlab/bluebox/pkg"
)

// Transport moves control and data transfers to a bluebox.
type Transport interface {
	// Control performs a control transfer. OUT requests send data; IN
	// requests read up to len(data) bytes into it.
	Control(ctx context.Context, setup *device.SetupPacket, data []byte) (int, error)

	// Transfer moves one packet on a data endpoint.
	Transfer(ctx context.Context, endpoint uint8, data []byte) (int, error)

	Close() error
}

// MaxDataRead is the largest packet DataRead accepts.
const MaxDataRead = 512

// Client issues bluebox requests over a Transport.
type Client struct {
	t Transport
}

// NewClient creates a client on t.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.t.Close()
}

func (c *Client) write(ctx context.Context, op bluebox.Opcode, value uint16, data []byte) error {
	var setup device.SetupPacket
	device.ClassRequestSetup(&setup, false, uint8(op), value, 0, uint16(len(data)))
	if _, err := c.t.Control(ctx, &setup, data); err != nil {
		return fmt.Errorf("%s write: %w", op, err)
	}
	pkg.LogDebug(pkg.ComponentHost, "control write", "op", op.String(), "value", value, "len", len(data))
	return nil
}

func (c *Client) read(ctx context.Context, op bluebox.Opcode, value uint16, data []byte) error {
	var setup device.SetupPacket
	device.ClassRequestSetup(&setup, true, uint8(op), value, 0, uint16(len(data)))
	n, err := c.t.Control(ctx, &setup, data)
	if err != nil {
		return fmt.Errorf("%s read: %w", op, err)
	}
	if n < len(data) {
		return fmt.Errorf("%s read: got %d bytes, want %d: %w", op, n, len(data), pkg.ErrShortTransfer)
	}
	return nil
}

func (c *Client) writeField(ctx context.Context, f bluebox.Field, v uint32) error {
	var buf [4]byte
	stage := buf[:f.Width()]
	f.Encode(stage, v)
	op, ok := bluebox.FieldOpcode(f)
	if !ok {
		return pkg.ErrUnknownField
	}
	return c.write(ctx, op, 0, stage)
}

func (c *Client) readField(ctx context.Context, f bluebox.Field) (uint32, error) {
	var buf [4]byte
	stage := buf[:f.Width()]
	op, ok := bluebox.FieldOpcode(f)
	if !ok {
		return 0, pkg.ErrUnknownField
	}
	if err := c.read(ctx, op, 0, stage); err != nil {
		return 0, err
	}
	return f.Decode(stage), nil
}

// RegRead reads register or readback select reg. Only the low 16 bits are
// returned.
func (c *Client) RegRead(ctx context.Context, reg uint8) (uint16, error) {
	var buf [4]byte
	if err := c.read(ctx, bluebox.OpRegister, uint16(reg), buf[:]); err != nil {
		return 0, err
	}
	return uint16(binary.LittleEndian.Uint32(buf[:])), nil
}

// RegWrite writes value to register reg. The register number is merged
// into the low bits of value.
func (c *Client) RegWrite(ctx context.Context, reg uint8, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value|uint32(reg))
	return c.write(ctx, bluebox.OpRegister, uint16(reg), buf[:])
}

// Frequency returns the carrier frequency in Hz.
func (c *Client) Frequency(ctx context.Context) (uint32, error) {
	return c.readField(ctx, bluebox.FieldFreq)
}

// SetFrequency sets the carrier frequency in Hz.
func (c *Client) SetFrequency(ctx context.Context, hz uint32) error {
	return c.writeField(ctx, bluebox.FieldFreq, hz)
}

// ModIndex returns the modulation index in 1/32 steps.
func (c *Client) ModIndex(ctx context.Context) (uint8, error) {
	v, err := c.readField(ctx, bluebox.FieldModIndex)
	return uint8(v), err
}

// SetModIndex sets the modulation index in 1/32 steps.
func (c *Client) SetModIndex(ctx context.Context, mi uint8) error {
	return c.writeField(ctx, bluebox.FieldModIndex, uint32(mi))
}

// CSMARSSI returns the carrier-sense threshold in dBm.
func (c *Client) CSMARSSI(ctx context.Context) (int16, error) {
	v, err := c.readField(ctx, bluebox.FieldCSMARSSI)
	return int16(uint16(v)), err
}

// SetCSMARSSI sets the carrier-sense threshold in dBm.
func (c *Client) SetCSMARSSI(ctx context.Context, dbm int16) error {
	return c.writeField(ctx, bluebox.FieldCSMARSSI, uint32(uint16(dbm)))
}

// Power returns the PA setting.
func (c *Client) Power(ctx context.Context) (uint8, error) {
	v, err := c.readField(ctx, bluebox.FieldPASetting)
	return uint8(v), err
}

// SetPower sets the PA setting.
func (c *Client) SetPower(ctx context.Context, pa uint8) error {
	return c.writeField(ctx, bluebox.FieldPASetting, uint32(pa))
}

// AFC reports whether automatic frequency control is enabled.
func (c *Client) AFC(ctx context.Context) (bool, error) {
	v, err := c.readField(ctx, bluebox.FieldAFCEnable)
	return v != 0, err
}

// SetAFC enables or disables automatic frequency control.
func (c *Client) SetAFC(ctx context.Context, on bool) error {
	var v uint32
	if on {
		v = 1
	}
	return c.writeField(ctx, bluebox.FieldAFCEnable, v)
}

// IFBandwidth returns the IF filter bandwidth setting.
func (c *Client) IFBandwidth(ctx context.Context) (uint8, error) {
	v, err := c.readField(ctx, bluebox.FieldIFBW)
	return uint8(v), err
}

// SetIFBandwidth sets the IF filter bandwidth setting.
func (c *Client) SetIFBandwidth(ctx context.Context, bw uint8) error {
	return c.writeField(ctx, bluebox.FieldIFBW, uint32(bw))
}

// TxMode switches the radio to transmit.
func (c *Client) TxMode(ctx context.Context) error {
	return c.write(ctx, bluebox.OpRxTxMode, 1, nil)
}

// RxMode switches the radio to receive.
func (c *Client) RxMode(ctx context.Context) error {
	return c.write(ctx, bluebox.OpRxTxMode, 0, nil)
}

// Bootloader restarts the device into its bootloader. The device drops off
// the bus without completing the request, so transfer errors are ignored.
func (c *Client) Bootloader(ctx context.Context) {
	if err := c.write(ctx, bluebox.OpBootloader, 0, nil); err != nil {
		pkg.LogDebug(pkg.ComponentHost, "bootloader request", "error", err)
	}
}

// Version returns the transceiver silicon revision.
func (c *Client) Version(ctx context.Context) (uint16, error) {
	return c.RegRead(ctx, adf7021.ReadbackVersion)
}

// RSSI returns the received signal strength in dBm.
func (c *Client) RSSI(ctx context.Context) (int, error) {
	rb, err := c.RegRead(ctx, adf7021.ReadbackRSSI)
	if err != nil {
		return 0, err
	}
	return adf7021.RSSIdBm(rb), nil
}

// TestMode selects a transmit test pattern; 0 turns test mode off.
func (c *Client) TestMode(ctx context.Context, pattern uint8) error {
	if pattern > adf7021.TestPatternSWD {
		return fmt.Errorf("test pattern %d: %w", pattern, pkg.ErrOutOfRange)
	}
	return c.RegWrite(ctx, adf7021.RegTestMode, uint32(pattern)<<8)
}

// Settings holds the fields a host can read back from the device.
type Settings struct {
	Freq      uint32 `yaml:"freq"`
	CSMARSSI  int16  `yaml:"csma_rssi"`
	ModIndex  uint8  `yaml:"modindex"`
	PASetting uint8  `yaml:"pa_setting"`
	AFCEnable uint8  `yaml:"afc_enable"`
	IFBW      uint8  `yaml:"if_bw"`
}

// Dump reads every host-visible field.
func (c *Client) Dump(ctx context.Context) (Settings, error) {
	var cfg bluebox.Config
	for _, f := range bluebox.Fields {
		v, err := c.readField(ctx, f)
		if err != nil {
			return Settings{}, err
		}
		if err := cfg.Set(f, v); err != nil {
			return Settings{}, err
		}
	}
	return Settings{
		Freq:      cfg.Freq,
		CSMARSSI:  cfg.CSMARSSI,
		ModIndex:  cfg.ModIndex,
		PASetting: cfg.PASetting,
		AFCEnable: cfg.AFCEnable,
		IFBW:      cfg.IFBW,
	}, nil
}

// DataWrite sends a payload on the data OUT endpoint.
func (c *Client) DataWrite(ctx context.Context, data []byte) (int, error) {
	return c.t.Transfer(ctx, bluebox.EndpointDataOut, data)
}

// DataRead receives one packet from the data IN endpoint.
func (c *Client) DataRead(ctx context.Context) ([]byte, error) {
	buf := make([]byte, MaxDataRead)
	n, err := c.t.Transfer(ctx, bluebox.EndpointDataIn, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
