package bluebox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/satlab/bluebox/pkg"
)

// fakePipe serves an OUT data stage and records IN data.
type fakePipe struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newPipe(data []byte) *fakePipe {
	return &fakePipe{in: bytes.NewReader(data)}
}

func (p *fakePipe) Read(buf []byte) (int, error)  { return p.in.Read(buf) }
func (p *fakePipe) Write(buf []byte) (int, error) { return p.out.Write(buf) }

// fakeRadio records everything the dispatcher asks of the hardware.
type fakeRadio struct {
	regs       map[uint8]uint32
	configured []Config
	modes      []string
	reads      []uint8
	jumped     bool

	writeErr     error
	configureErr error
	bootErr      error
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{regs: make(map[uint8]uint32)}
}

func (r *fakeRadio) WriteRegister(value uint32) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.regs[uint8(value&0xF)] = value
	return nil
}

func (r *fakeRadio) ReadRegister(num uint8) (uint32, error) {
	r.reads = append(r.reads, num)
	return r.regs[num], nil
}

func (r *fakeRadio) Configure(cfg Config) error {
	r.configured = append(r.configured, cfg)
	return r.configureErr
}

func (r *fakeRadio) SetTxMode() error {
	r.modes = append(r.modes, "tx")
	return nil
}

func (r *fakeRadio) SetRxMode() error {
	r.modes = append(r.modes, "rx")
	return nil
}

func (r *fakeRadio) EnterBootloader() error {
	r.jumped = true
	return r.bootErr
}

func (r *fakeRadio) hardware() Hardware {
	return Hardware{Registers: r, Programmer: r, Modes: r, Bootloader: r}
}

func newTestDispatcher(opts Options) (*Dispatcher, *fakeRadio) {
	radio := newFakeRadio()
	return NewDispatcher(NewMirror(DefaultConfig()), radio.hardware(), opts), radio
}

func out(op Opcode, value uint16, data []byte) (Transaction, *fakePipe) {
	return Transaction{Direction: DirOut, Opcode: op, Value: value, Length: uint16(len(data))}, newPipe(data)
}

func in(op Opcode, value, length uint16) (Transaction, *fakePipe) {
	return Transaction{Direction: DirIn, Opcode: op, Value: value, Length: length}, newPipe(nil)
}

func TestFieldRoundTrip(t *testing.T) {
	tests := []struct {
		op    Opcode
		field Field
		data  []byte
	}{
		{OpFrequency, FieldFreq, []byte{0x33, 0x22, 0x11, 0x00}},
		{OpModIndex, FieldModIndex, []byte{0x07}},
		{OpCSMARSSI, FieldCSMARSSI, []byte{0x9C, 0xFF}},
		{OpPower, FieldPASetting, []byte{0x3F}},
		{OpAFC, FieldAFCEnable, []byte{0x01}},
		{OpIFBW, FieldIFBW, []byte{0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			d, radio := newTestDispatcher(Options{})

			tx, pipe := out(tt.op, 0, tt.data)
			kind, err := d.Dispatch(tx, pipe)
			if err != nil || kind != KindField {
				t.Fatalf("Dispatch(OUT) = %v, %v; want field, nil", kind, err)
			}
			if len(radio.configured) != 1 {
				t.Fatalf("Configure called %d times, want 1", len(radio.configured))
			}
			want := tt.field.Decode(tt.data)
			if got, _ := d.Mirror().Get(tt.field); got != want {
				t.Errorf("mirror %s = 0x%X, want 0x%X", tt.field, got, want)
			}
			if got, _ := radio.configured[0].Get(tt.field); got != want {
				t.Errorf("programmed %s = 0x%X, want 0x%X", tt.field, got, want)
			}

			tx, pipe = in(tt.op, 0, uint16(len(tt.data)))
			if _, err := d.Dispatch(tx, pipe); err != nil {
				t.Fatalf("Dispatch(IN) error = %v", err)
			}
			if !bytes.Equal(pipe.out.Bytes(), tt.data) {
				t.Errorf("IN %s = % X, want % X", tt.op, pipe.out.Bytes(), tt.data)
			}
			if len(radio.configured) != 1 {
				t.Errorf("IN request reprogrammed the radio")
			}
		})
	}
}

func TestFrequencyScenario(t *testing.T) {
	d, radio := newTestDispatcher(Options{})

	tx, pipe := out(OpFrequency, 0, []byte{0x33, 0x22, 0x11, 0x00})
	d.Dispatch(tx, pipe)

	if got := d.Mirror().Snapshot().Freq; got != 0x00112233 {
		t.Errorf("freq = 0x%08X, want 0x00112233", got)
	}
	if len(radio.configured) != 1 {
		t.Errorf("Configure called %d times, want 1", len(radio.configured))
	}
	if got := radio.configured[0].Freq; got != 0x00112233 {
		t.Errorf("programmed freq = 0x%08X, want 0x00112233", got)
	}
}

func TestCSMARSSISigned(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	tx, pipe := out(OpCSMARSSI, 0, []byte{0x9C, 0xFF})
	d.Dispatch(tx, pipe)

	if got := d.Mirror().Snapshot().CSMARSSI; got != -100 {
		t.Errorf("csma_rssi = %d, want -100", got)
	}
}

func TestInitialStateIsDefault(t *testing.T) {
	d, _ := newTestDispatcher(Options{})
	def := DefaultConfig()

	if got := d.Mirror().Snapshot(); got != def {
		t.Errorf("initial mirror = %+v, want %+v", got, def)
	}
	for _, f := range Fields {
		op, ok := FieldOpcode(f)
		if !ok {
			t.Fatalf("no opcode for %s", f)
		}
		tx, pipe := in(op, 0, uint16(f.Width()))
		d.Dispatch(tx, pipe)

		want, _ := def.Get(f)
		if got := f.Decode(pipe.out.Bytes()); got != want {
			t.Errorf("IN %s = 0x%X, want default 0x%X", op, got, want)
		}
	}
}

func TestDistinctFieldWritesDoNotInterfere(t *testing.T) {
	d, radio := newTestDispatcher(Options{})

	writes := []struct {
		op   Opcode
		data []byte
	}{
		{OpFrequency, []byte{0x40, 0x42, 0x0F, 0x1A}},
		{OpAFC, []byte{0x00}},
		{OpPower, []byte{0x10}},
		{OpFrequency, []byte{0x00, 0x00, 0x00, 0x1B}},
	}
	for _, w := range writes {
		tx, pipe := out(w.op, 0, w.data)
		d.Dispatch(tx, pipe)
	}

	want := DefaultConfig()
	want.Freq = 0x1B000000
	want.AFCEnable = 0
	want.PASetting = 0x10
	if got := d.Mirror().Snapshot(); got != want {
		t.Errorf("mirror = %+v, want %+v", got, want)
	}
	if len(radio.configured) != len(writes) {
		t.Errorf("Configure called %d times, want %d", len(radio.configured), len(writes))
	}
	if last := radio.configured[len(radio.configured)-1]; last != want {
		t.Errorf("last programmed = %+v, want %+v", last, want)
	}
}

func TestRawRegister(t *testing.T) {
	d, radio := newTestDispatcher(Options{})
	before := d.Mirror().Snapshot()

	// Value's low nibble is replaced by the register number.
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 0x0001234F)
	tx, pipe := out(OpRegister, 2, data)
	if kind, err := d.Dispatch(tx, pipe); err != nil || kind != KindRawRegister {
		t.Fatalf("Dispatch(OUT) = %v, %v", kind, err)
	}
	if got := radio.regs[2]; got != 0x00012342 {
		t.Errorf("register 2 = 0x%08X, want 0x00012342", got)
	}

	tx, pipe = in(OpRegister, 2, 4)
	d.Dispatch(tx, pipe)
	if got := binary.LittleEndian.Uint32(pipe.out.Bytes()); got != 0x00012342 {
		t.Errorf("IN register 2 = 0x%08X, want 0x00012342", got)
	}

	if got := d.Mirror().Snapshot(); got != before {
		t.Errorf("raw register access changed the mirror")
	}
	if len(radio.configured) != 0 {
		t.Errorf("raw register access reprogrammed the radio")
	}
}

func TestRawRegisterReadWideValue(t *testing.T) {
	d, radio := newTestDispatcher(Options{})
	radio.regs[2] = 0x00012342

	tx, pipe := in(OpRegister, 0x0102, 4)
	if kind, err := d.Dispatch(tx, pipe); err != nil || kind != KindRawRegister {
		t.Fatalf("Dispatch(IN 0x0102) = %v, %v", kind, err)
	}
	if pipe.out.Len() != 0 {
		t.Errorf("IN register 0x0102 returned % X, want no data", pipe.out.Bytes())
	}
	if len(radio.reads) != 0 {
		t.Errorf("hardware reads = %v, want none", radio.reads)
	}

	tx, pipe = in(OpRegister, 0x1C, 4)
	d.Dispatch(tx, pipe)
	if len(radio.reads) != 1 || radio.reads[0] != 0x1C {
		t.Errorf("hardware reads = %v, want [28]", radio.reads)
	}
}

func TestModeSwitch(t *testing.T) {
	d, radio := newTestDispatcher(Options{})

	for _, value := range []uint16{1, 0, 0x100} {
		tx, pipe := out(OpRxTxMode, value, nil)
		if kind, err := d.Dispatch(tx, pipe); err != nil || kind != KindModeSwitch {
			t.Fatalf("Dispatch(RXTX_MODE %d) = %v, %v", value, kind, err)
		}
	}

	want := []string{"tx", "rx", "tx"}
	if len(radio.modes) != len(want) {
		t.Fatalf("modes = %v, want %v", radio.modes, want)
	}
	for i := range want {
		if radio.modes[i] != want[i] {
			t.Errorf("modes = %v, want %v", radio.modes, want)
			break
		}
	}
}

func TestStubAndUnknown(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		op   Opcode
		want Kind
	}{
		{"training OUT", DirOut, OpTraining, KindStub},
		{"training IN", DirIn, OpTraining, KindStub},
		{"syncword OUT", DirOut, OpSyncWord, KindStub},
		{"syncword IN", DirIn, OpSyncWord, KindStub},
		{"rxtx IN", DirIn, OpRxTxMode, KindUnknown},
		{"bootloader IN", DirIn, OpBootloader, KindUnknown},
		{"data OUT", DirOut, OpData, KindUnknown},
		{"undeclared", DirOut, Opcode(0x42), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, radio := newTestDispatcher(Options{Length: LengthStrict, ReportErrors: true})
			pipe := newPipe([]byte{0xAA, 0xBB})
			tx := Transaction{Direction: tt.dir, Opcode: tt.op, Length: 2}

			kind, err := d.Dispatch(tx, pipe)
			if err != nil {
				t.Errorf("Dispatch() error = %v, want nil", err)
			}
			if kind != tt.want {
				t.Errorf("Dispatch() kind = %v, want %v", kind, tt.want)
			}
			if pipe.in.Len() != 2 || pipe.out.Len() != 0 {
				t.Errorf("data stage touched: %d unread, %d written", pipe.in.Len(), pipe.out.Len())
			}
			if d.Mirror().Snapshot() != DefaultConfig() {
				t.Error("mirror changed")
			}
			if len(radio.configured) != 0 || len(radio.modes) != 0 || radio.jumped {
				t.Error("hardware touched")
			}
		})
	}
}

func TestBootloader(t *testing.T) {
	d, radio := newTestDispatcher(Options{})

	tx, pipe := out(OpBootloader, 0, nil)
	kind, err := d.Dispatch(tx, pipe)
	if kind != KindBootloader || !errors.Is(err, pkg.ErrDetached) {
		t.Errorf("Dispatch() = %v, %v; want bootloader, %v", kind, err, pkg.ErrDetached)
	}
	if !radio.jumped {
		t.Error("bootloader not entered")
	}
}

func TestBootloaderFailure(t *testing.T) {
	d, radio := newTestDispatcher(Options{})
	radio.bootErr = pkg.ErrNotConfigured

	tx, pipe := out(OpBootloader, 0, nil)
	_, err := d.Dispatch(tx, pipe)
	if !errors.Is(err, pkg.ErrNotConfigured) || errors.Is(err, pkg.ErrDetached) {
		t.Errorf("Dispatch() error = %v, want wrapped %v", err, pkg.ErrNotConfigured)
	}
}

func TestLenientShortTransfer(t *testing.T) {
	d, radio := newTestDispatcher(Options{})

	tx, pipe := out(OpFrequency, 0, []byte{0x01, 0x02})
	if _, err := d.Dispatch(tx, pipe); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := d.Mirror().Snapshot().Freq; got != 0x0201 {
		t.Errorf("freq = 0x%08X, want 0x00000201", got)
	}
	if len(radio.configured) != 1 {
		t.Errorf("Configure called %d times, want 1", len(radio.configured))
	}
}

func TestLenientExcessIgnored(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	tx, pipe := out(OpAFC, 0, []byte{0x01, 0xFF, 0xFF})
	d.Dispatch(tx, pipe)
	if got := d.Mirror().Snapshot().AFCEnable; got != 1 {
		t.Errorf("afc_enable = %d, want 1", got)
	}
}

func TestStrictLength(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		data []byte
	}{
		{"short OUT", Transaction{Direction: DirOut, Opcode: OpFrequency, Length: 2}, []byte{1, 2}},
		{"long OUT", Transaction{Direction: DirOut, Opcode: OpPower, Length: 2}, []byte{1, 2}},
		{"short data despite wLength", Transaction{Direction: DirOut, Opcode: OpFrequency, Length: 4}, []byte{1}},
		{"short IN", Transaction{Direction: DirIn, Opcode: OpCSMARSSI, Length: 1}, nil},
		{"register OUT", Transaction{Direction: DirOut, Opcode: OpRegister, Length: 3}, []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, radio := newTestDispatcher(Options{Length: LengthStrict})
			pipe := newPipe(tt.data)

			_, err := d.Dispatch(tt.tx, pipe)
			if !errors.Is(err, pkg.ErrShortTransfer) {
				t.Errorf("Dispatch() error = %v, want %v", err, pkg.ErrShortTransfer)
			}
			if d.Mirror().Snapshot() != DefaultConfig() {
				t.Error("mirror changed")
			}
			if len(radio.configured) != 0 || len(radio.regs) != 0 {
				t.Error("hardware touched")
			}
			if pipe.out.Len() != 0 {
				t.Errorf("IN data written: % X", pipe.out.Bytes())
			}
		})
	}
}

func TestProgrammerFailure(t *testing.T) {
	tests := []struct {
		name    string
		report  bool
		wantErr bool
	}{
		{"silent", false, false},
		{"reported", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, radio := newTestDispatcher(Options{ReportErrors: tt.report})
			radio.configureErr = pkg.ErrOutOfRange

			tx, pipe := out(OpFrequency, 0, []byte{1, 0, 0, 0})
			_, err := d.Dispatch(tx, pipe)
			if (err != nil) != tt.wantErr {
				t.Errorf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, pkg.ErrOutOfRange) {
				t.Errorf("Dispatch() error = %v, want wrapped %v", err, pkg.ErrOutOfRange)
			}
			// The mirror keeps the commanded value either way.
			if got := d.Mirror().Snapshot().Freq; got != 1 {
				t.Errorf("freq = %d, want 1", got)
			}
		})
	}
}

func TestRegisterWriteFailure(t *testing.T) {
	d, radio := newTestDispatcher(Options{ReportErrors: true})
	radio.writeErr = pkg.ErrNoDevice

	tx, pipe := out(OpRegister, 3, []byte{0, 0, 0, 0})
	if _, err := d.Dispatch(tx, pipe); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Dispatch() error = %v, want %v", err, pkg.ErrNoDevice)
	}
}

type recordingObserver struct {
	handled      []Kind
	changed      []Field
	reprogrammed int
}

func (o *recordingObserver) RequestHandled(tx Transaction, kind Kind, err error) {
	o.handled = append(o.handled, kind)
}

func (o *recordingObserver) ConfigChanged(field Field, cfg Config) {
	o.changed = append(o.changed, field)
}

func (o *recordingObserver) Reprogrammed(cfg Config, err error) {
	o.reprogrammed++
}

func TestObservers(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	d, _ := newTestDispatcher(Options{Observer: Observers{a, b}})

	tx, pipe := out(OpIFBW, 0, []byte{2})
	d.Dispatch(tx, pipe)
	tx, pipe = in(OpIFBW, 0, 1)
	d.Dispatch(tx, pipe)
	tx, pipe = out(Opcode(0x77), 0, nil)
	d.Dispatch(tx, pipe)

	for _, o := range []*recordingObserver{a, b} {
		if len(o.handled) != 3 || o.handled[2] != KindUnknown {
			t.Errorf("handled = %v, want 3 entries ending in unknown", o.handled)
		}
		if len(o.changed) != 1 || o.changed[0] != FieldIFBW {
			t.Errorf("changed = %v, want [if_bw]", o.changed)
		}
		if o.reprogrammed != 1 {
			t.Errorf("reprogrammed = %d, want 1", o.reprogrammed)
		}
	}
}
