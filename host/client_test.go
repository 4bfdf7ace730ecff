package host

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/satlab/bluebox/adf7021"
	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/device"
	"github.com/satlab/bluebox/pkg"
)

// loopback dispatches requests straight into a Dispatcher driving a
// simulated chip.
type loopback struct {
	disp   *bluebox.Dispatcher
	sim    *adf7021.Sim
	trx    *adf7021.Transceiver
	data   [][]byte
	closed bool
	stall  bool
}

type stage struct {
	r *bytes.Reader
	w *bytes.Buffer
}

func (s *stage) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stage) Write(p []byte) (int, error) { return s.w.Write(p) }

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	sim := adf7021.NewSim()
	trx := adf7021.New(sim, adf7021.DefaultXtal)
	if err := trx.PowerOn(bluebox.DefaultConfig()); err != nil {
		t.Fatalf("PowerOn() error = %v", err)
	}
	hw := bluebox.Hardware{Registers: trx, Programmer: trx, Modes: trx, Bootloader: detach{}}
	return &loopback{
		disp: bluebox.NewDispatcher(bluebox.NewMirror(bluebox.DefaultConfig()), hw, bluebox.Options{}),
		sim:  sim,
		trx:  trx,
	}
}

type detach struct{}

func (detach) EnterBootloader() error { return nil }

func (l *loopback) Control(ctx context.Context, setup *device.SetupPacket, data []byte) (int, error) {
	if l.stall {
		return 0, pkg.ErrStall
	}
	tx := bluebox.Transaction{
		Direction: bluebox.Direction(setup.Direction()),
		Opcode:    bluebox.Opcode(setup.Request),
		Value:     setup.Value,
		Index:     setup.Index,
		Length:    setup.Length,
	}
	var out []byte
	if setup.IsHostToDevice() {
		out = data
	}
	s := &stage{r: bytes.NewReader(out), w: new(bytes.Buffer)}
	if _, err := l.disp.Dispatch(tx, s); err != nil {
		if errors.Is(err, pkg.ErrDetached) {
			return 0, pkg.ErrNoDevice
		}
		return 0, pkg.ErrStall
	}
	if setup.IsDeviceToHost() {
		return copy(data, s.w.Bytes()), nil
	}
	return len(data), nil
}

func (l *loopback) Transfer(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	if endpoint == bluebox.EndpointDataOut {
		l.data = append(l.data, append([]byte(nil), data...))
		return len(data), nil
	}
	if len(l.data) == 0 {
		return 0, pkg.ErrTimeout
	}
	n := copy(data, l.data[0])
	l.data = l.data[1:]
	return n, nil
}

func (l *loopback) Close() error {
	l.closed = true
	return nil
}

func TestClientFields(t *testing.T) {
	ctx := context.Background()
	l := newLoopback(t)
	c := NewClient(l)

	if err := c.SetFrequency(ctx, 145800000); err != nil {
		t.Fatalf("SetFrequency() error = %v", err)
	}
	if f, err := c.Frequency(ctx); err != nil || f != 145800000 {
		t.Errorf("Frequency() = %d, %v", f, err)
	}

	if err := c.SetCSMARSSI(ctx, -80); err != nil {
		t.Fatalf("SetCSMARSSI() error = %v", err)
	}
	if v, err := c.CSMARSSI(ctx); err != nil || v != -80 {
		t.Errorf("CSMARSSI() = %d, %v", v, err)
	}

	if err := c.SetModIndex(ctx, 16); err != nil {
		t.Fatalf("SetModIndex() error = %v", err)
	}
	if v, err := c.ModIndex(ctx); err != nil || v != 16 {
		t.Errorf("ModIndex() = %d, %v", v, err)
	}

	if err := c.SetPower(ctx, 40); err != nil {
		t.Fatalf("SetPower() error = %v", err)
	}
	if v, err := c.Power(ctx); err != nil || v != 40 {
		t.Errorf("Power() = %d, %v", v, err)
	}

	if err := c.SetAFC(ctx, false); err != nil {
		t.Fatalf("SetAFC() error = %v", err)
	}
	if v, err := c.AFC(ctx); err != nil || v {
		t.Errorf("AFC() = %v, %v", v, err)
	}

	if err := c.SetIFBandwidth(ctx, 2); err != nil {
		t.Fatalf("SetIFBandwidth() error = %v", err)
	}
	if v, err := c.IFBandwidth(ctx); err != nil || v != 2 {
		t.Errorf("IFBandwidth() = %d, %v", v, err)
	}

	cfg, err := c.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	want := Settings{Freq: 145800000, CSMARSSI: -80, ModIndex: 16, PASetting: 40, AFCEnable: 0, IFBW: 2}
	if cfg != want {
		t.Errorf("Dump() = %+v, want %+v", cfg, want)
	}

	// Every write reprogrammed the chip.
	if got := l.trx.Config(); got != want {
		t.Errorf("programmed config = %+v, want %+v", got, want)
	}
}

func TestClientRegisters(t *testing.T) {
	ctx := context.Background()
	l := newLoopback(t)
	c := NewClient(l)

	if err := c.RegWrite(ctx, 9, 0x12345670); err != nil {
		t.Fatalf("RegWrite() error = %v", err)
	}
	if got := l.sim.Register(9); got != 0x12345679 {
		t.Errorf("chip R9 = 0x%08X", uint32(got))
	}
	// Only the low 16 bits are reported.
	if v, err := c.RegRead(ctx, 9); err != nil || v != 0x5679 {
		t.Errorf("RegRead(9) = 0x%04X, %v", v, err)
	}

	if v, err := c.Version(ctx); err != nil || v != adf7021.SimVersion {
		t.Errorf("Version() = 0x%04X, %v", v, err)
	}
	if v, err := c.RSSI(ctx); err != nil || v != -110 {
		t.Errorf("RSSI() = %d, %v", v, err)
	}

	if err := c.TestMode(ctx, adf7021.TestPatternPN9); err != nil {
		t.Fatalf("TestMode() error = %v", err)
	}
	if got := l.sim.Register(adf7021.RegTestMode); got != adf7021.TestMode(adf7021.TestPatternPN9) {
		t.Errorf("chip R15 = %s", got)
	}

	for _, pattern := range []uint8{adf7021.TestPatternSWD + 1, 0xFF} {
		if err := c.TestMode(ctx, pattern); !errors.Is(err, pkg.ErrOutOfRange) {
			t.Errorf("TestMode(%d) error = %v, want ErrOutOfRange", pattern, err)
		}
	}
	if got := l.sim.Register(adf7021.RegTestMode); got != adf7021.TestMode(adf7021.TestPatternPN9) {
		t.Errorf("chip R15 after rejected patterns = %s", got)
	}
}

func TestClientModes(t *testing.T) {
	ctx := context.Background()
	l := newLoopback(t)
	c := NewClient(l)

	if err := c.TxMode(ctx); err != nil {
		t.Fatalf("TxMode() error = %v", err)
	}
	if !l.trx.IsTx() {
		t.Error("transceiver not in transmit mode")
	}
	if err := c.RxMode(ctx); err != nil {
		t.Fatalf("RxMode() error = %v", err)
	}
	if l.trx.IsTx() {
		t.Error("transceiver not in receive mode")
	}

	// Errors from the vanishing device are swallowed.
	c.Bootloader(ctx)
}

func TestClientData(t *testing.T) {
	ctx := context.Background()
	l := newLoopback(t)
	c := NewClient(l)

	if n, err := c.DataWrite(ctx, []byte("hello")); err != nil || n != 5 {
		t.Fatalf("DataWrite() = %d, %v", n, err)
	}
	got, err := c.DataRead(ctx)
	if err != nil || string(got) != "hello" {
		t.Errorf("DataRead() = %q, %v", got, err)
	}
	if _, err := c.DataRead(ctx); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("DataRead() error = %v, want ErrTimeout", err)
	}

	c.Close()
	if !l.closed {
		t.Error("Close() did not close transport")
	}
}

func TestClientStall(t *testing.T) {
	ctx := context.Background()
	l := newLoopback(t)
	l.stall = true
	c := NewClient(l)

	if err := c.SetFrequency(ctx, 1); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("SetFrequency() error = %v, want ErrStall", err)
	}
	if _, err := c.Frequency(ctx); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("Frequency() error = %v, want ErrStall", err)
	}
}

// shortTransport answers IN requests with fewer bytes than asked.
type shortTransport struct{ loopback }

func (s *shortTransport) Control(ctx context.Context, setup *device.SetupPacket, data []byte) (int, error) {
	return 1, nil
}

func TestClientShortRead(t *testing.T) {
	c := NewClient(&shortTransport{})
	if _, err := c.Frequency(context.Background()); !errors.Is(err, pkg.ErrShortTransfer) {
		t.Errorf("Frequency() error = %v, want ErrShortTransfer", err)
	}
}
