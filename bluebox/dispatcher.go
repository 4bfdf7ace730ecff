package bluebox

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/satlab/bluebox/device"
	"github.com/satlab/bluebox/pkg"
)

// Registers gives direct access to transceiver registers.
type Registers interface {
	// WriteRegister writes a register word. The low 4 bits select the
	// register.
	WriteRegister(value uint32) error

	// ReadRegister returns the value of register num.
	ReadRegister(num uint8) (uint32, error)
}

// Programmer writes the full transceiver register set from a configuration.
// Configure must be idempotent.
type Programmer interface {
	Configure(cfg Config) error
}

// ModeSwitcher switches the transceiver between transmit and receive.
type ModeSwitcher interface {
	SetTxMode() error
	SetRxMode() error
}

// Bootloader transfers control to the firmware bootloader.
type Bootloader interface {
	EnterBootloader() error
}

// Hardware bundles the collaborators a Dispatcher drives.
type Hardware struct {
	Registers  Registers
	Programmer Programmer
	Modes      ModeSwitcher
	Bootloader Bootloader
}

// LengthPolicy controls how a data stage whose wLength differs from the
// field width is treated.
type LengthPolicy uint8

// Length policies.
const (
	// LengthLenient zero-fills short OUT data, ignores excess OUT data and
	// truncates IN data to wLength.
	LengthLenient LengthPolicy = iota

	// LengthStrict rejects any wLength that differs from the field width
	// with pkg.ErrShortTransfer. The mirror is left untouched.
	LengthStrict
)

func (p LengthPolicy) String() string {
	if p == LengthStrict {
		return "strict"
	}
	return "lenient"
}

// Options configures a Dispatcher.
type Options struct {
	Length LengthPolicy

	// ReportErrors makes hardware and programmer failures fail the request,
	// which stalls it. By default they are logged and the request succeeds.
	ReportErrors bool

	Observer Observer
}

// Dispatcher routes control transactions to their handlers.
type Dispatcher struct {
	mirror *Mirror
	hw     Hardware
	opts   Options

	// Serializes field write plus reprogram.
	mutex sync.Mutex
}

// NewDispatcher creates a dispatcher driving hw from mirror.
func NewDispatcher(mirror *Mirror, hw Hardware, opts Options) *Dispatcher {
	return &Dispatcher{mirror: mirror, hw: hw, opts: opts}
}

// Mirror returns the configuration mirror.
func (d *Dispatcher) Mirror() *Mirror {
	return d.mirror
}

// HandleSetup implements device.ControlHandler. Requests that are not
// class requests to an interface are acknowledged without effect.
func (d *Dispatcher) HandleSetup(setup *device.SetupPacket, pipe *device.ControlPipe) error {
	if !setup.IsClass() || !setup.IsInterfaceRecipient() {
		pkg.LogDebug(pkg.ComponentDispatch, "ignoring request", "request", setup.String())
		return nil
	}
	tx := Transaction{
		Direction: Direction(setup.Direction()),
		Opcode:    Opcode(setup.Request),
		Value:     setup.Value,
		Index:     setup.Index,
		Length:    setup.Length,
	}
	_, err := d.Dispatch(tx, pipe)
	return err
}

// Dispatch executes one transaction, moving its data stage through pipe.
// It returns the handler variant that served it.
func (d *Dispatcher) Dispatch(tx Transaction, pipe io.ReadWriter) (Kind, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	h, ok := Route(tx.Opcode, tx.Direction)
	var err error
	switch {
	case !ok:
		pkg.LogDebug(pkg.ComponentDispatch, "unknown request", "tx", tx.String())
	case h.Kind == KindRawRegister:
		err = d.rawRegister(tx, pipe)
	case h.Kind == KindModeSwitch:
		err = d.modeSwitch(tx)
	case h.Kind == KindField:
		err = d.field(tx, h.Field, pipe)
	case h.Kind == KindStub:
		pkg.LogDebug(pkg.ComponentDispatch, "unimplemented request", "tx", tx.String())
	case h.Kind == KindBootloader:
		err = d.bootloader()
	}

	if d.opts.Observer != nil {
		d.opts.Observer.RequestHandled(tx, h.Kind, err)
	}
	return h.Kind, err
}

// hardwareError applies the error reporting option to a collaborator
// failure.
func (d *Dispatcher) hardwareError(op string, err error) error {
	if err == nil {
		return nil
	}
	pkg.LogWarn(pkg.ComponentDispatch, op+" failed", "error", err)
	if d.opts.ReportErrors {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// rawRegister passes a register word straight to the hardware. On OUT the
// low nibble of wValue names the register. On IN wValue is the register or
// readback number; values above 0xFF address nothing and are ignored.
func (d *Dispatcher) rawRegister(tx Transaction, pipe io.ReadWriter) error {
	var buf [4]byte
	if tx.Direction == DirIn {
		if tx.Value > 0xFF {
			pkg.LogDebug(pkg.ComponentDispatch, "register number out of range", "value", tx.Value)
			return nil
		}
		if err := d.checkInLength(tx, len(buf)); err != nil {
			return err
		}
		num := uint8(tx.Value)
		value, err := d.hw.Registers.ReadRegister(num)
		if err = d.hardwareError("register read", err); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[:], value)
		_, err = pipe.Write(buf[:])
		pkg.LogDebug(pkg.ComponentDispatch, "register read", "reg", num, "value", value)
		return err
	}

	if err := d.readOut(tx, pipe, buf[:]); err != nil {
		return err
	}
	value := binary.LittleEndian.Uint32(buf[:])
	value = (value &^ 0xF) | uint32(tx.Value&0xF)
	pkg.LogDebug(pkg.ComponentDispatch, "register write", "reg", tx.Value&0xF, "value", value)
	return d.hardwareError("register write", d.hw.Registers.WriteRegister(value))
}

func (d *Dispatcher) modeSwitch(tx Transaction) error {
	if tx.Value != 0 {
		pkg.LogInfo(pkg.ComponentDispatch, "switching to transmit")
		return d.hardwareError("tx mode", d.hw.Modes.SetTxMode())
	}
	pkg.LogInfo(pkg.ComponentDispatch, "switching to receive")
	return d.hardwareError("rx mode", d.hw.Modes.SetRxMode())
}

func (d *Dispatcher) field(tx Transaction, f Field, pipe io.ReadWriter) error {
	var buf [4]byte
	stage := buf[:f.Width()]

	if tx.Direction == DirIn {
		if err := d.checkInLength(tx, len(stage)); err != nil {
			return err
		}
		v, err := d.mirror.Get(f)
		if err != nil {
			return err
		}
		f.Encode(stage, v)
		_, err = pipe.Write(stage)
		return err
	}

	if err := d.readOut(tx, pipe, stage); err != nil {
		return err
	}
	v := f.Decode(stage)
	if err := d.mirror.Set(f, v); err != nil {
		return err
	}
	cfg := d.mirror.Snapshot()
	pkg.LogInfo(pkg.ComponentDispatch, "configuration changed", "field", f.String(), "value", v)
	if d.opts.Observer != nil {
		d.opts.Observer.ConfigChanged(f, cfg)
	}

	err := d.hw.Programmer.Configure(cfg)
	if d.opts.Observer != nil {
		d.opts.Observer.Reprogrammed(cfg, err)
	}
	return d.hardwareError("reprogram", err)
}

func (d *Dispatcher) bootloader() error {
	pkg.LogInfo(pkg.ComponentDispatch, "entering bootloader")
	if err := d.hw.Bootloader.EnterBootloader(); err != nil {
		pkg.LogError(pkg.ComponentDispatch, "bootloader entry failed", "error", err)
		return fmt.Errorf("bootloader: %w", err)
	}
	return pkg.ErrDetached
}

// readOut reads an OUT data stage of len(buf) bytes. Lenient mode leaves
// missing bytes zero.
func (d *Dispatcher) readOut(tx Transaction, pipe io.Reader, buf []byte) error {
	if d.opts.Length == LengthStrict && int(tx.Length) != len(buf) {
		return fmt.Errorf("%s: wLength %d, want %d: %w", tx.Opcode, tx.Length, len(buf), pkg.ErrShortTransfer)
	}
	clear(buf)
	n, err := io.ReadFull(pipe, buf)
	switch {
	case err == nil:
		return nil
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		if d.opts.Length == LengthStrict {
			return fmt.Errorf("%s: got %d bytes, want %d: %w", tx.Opcode, n, len(buf), pkg.ErrShortTransfer)
		}
		pkg.LogDebug(pkg.ComponentDispatch, "short data stage zero-filled", "tx", tx.String(), "got", n)
		return nil
	default:
		return err
	}
}

func (d *Dispatcher) checkInLength(tx Transaction, width int) error {
	if d.opts.Length == LengthStrict && int(tx.Length) != width {
		return fmt.Errorf("%s: wLength %d, want %d: %w", tx.Opcode, tx.Length, width, pkg.ErrShortTransfer)
	}
	return nil
}
