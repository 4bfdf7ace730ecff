package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/device"
	"github.com/satlab/bluebox/pkg"
)

// ControlTimeout bounds each control transfer.
const ControlTimeout = time.Second

// Info holds the string descriptors of an opened device.
type Info struct {
	Manufacturer string `yaml:"manufacturer" json:"manufacturer"`
	Product      string `yaml:"product" json:"product"`
	Serial       string `yaml:"serial" json:"serial"`
}

// Transport is a bluebox attached through libusb.
type Transport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	in  *gousb.InEndpoint
	out *gousb.OutEndpoint

	mutex sync.Mutex
}

// Open attaches to the first device matching vid and pid. The kernel driver
// is detached from the interface while it is claimed.
func Open(vid, pid uint16) (*Transport, error) {
	t := &Transport{ctx: gousb.NewContext()}

	dev, err := t.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		t.Close()
		return nil, fmt.Errorf("%04x:%04x: %w", vid, pid, pkg.ErrNoDevice)
	}
	t.dev = dev
	t.dev.ControlTimeout = ControlTimeout

	if err := t.dev.SetAutoDetach(true); err != nil {
		pkg.LogWarn(pkg.ComponentHost, "auto detach unavailable", "error", err)
	}
	if t.cfg, err = t.dev.Config(1); err != nil {
		t.Close()
		return nil, fmt.Errorf("set configuration: %w", err)
	}
	if t.intf, err = t.cfg.Interface(0, 0); err != nil {
		t.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	if t.in, err = t.intf.InEndpoint(int(bluebox.EndpointDataIn & 0x0F)); err != nil {
		t.Close()
		return nil, fmt.Errorf("data in endpoint: %w", err)
	}
	if t.out, err = t.intf.OutEndpoint(int(bluebox.EndpointDataOut & 0x0F)); err != nil {
		t.Close()
		return nil, fmt.Errorf("data out endpoint: %w", err)
	}

	pkg.LogDebug(pkg.ComponentHost, "usb device opened", "vid", vid, "pid", pid)
	return t, nil
}

// OpenDefault opens the bluebox VID/PID.
func OpenDefault() (*Transport, error) {
	return Open(bluebox.VendorID, bluebox.ProductID)
}

// Info reads the manufacturer, product and serial strings.
func (t *Transport) Info() (Info, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var (
		info Info
		err  error
	)
	if info.Manufacturer, err = t.dev.Manufacturer(); err != nil {
		return info, err
	}
	if info.Product, err = t.dev.Product(); err != nil {
		return info, err
	}
	info.Serial, err = t.dev.SerialNumber()
	return info, err
}

// Control performs a control transfer.
func (t *Transport) Control(ctx context.Context, setup *device.SetupPacket, data []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !setup.IsDeviceToHost() && len(data) == 0 {
		data = nil
	}
	n, err := t.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
	return n, mapError(err)
}

// Transfer moves one packet on a data endpoint.
func (t *Transport) Transfer(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch endpoint {
	case bluebox.EndpointDataIn:
		n, err := t.in.ReadContext(ctx, data)
		return n, mapError(err)
	case bluebox.EndpointDataOut:
		n, err := t.out.WriteContext(ctx, data)
		return n, mapError(err)
	default:
		return 0, pkg.ErrInvalidEndpoint
	}
}

// Close releases the interface, configuration, device and context.
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	var err error
	if t.cfg != nil {
		err = t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		if cerr := t.dev.Close(); err == nil {
			err = cerr
		}
		t.dev = nil
	}
	if t.ctx != nil {
		if cerr := t.ctx.Close(); err == nil {
			err = cerr
		}
		t.ctx = nil
	}
	return err
}

// mapError translates libusb failures to the shared sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gousb.ErrorPipe), errors.Is(err, gousb.TransferStall):
		return fmt.Errorf("%w: %v", pkg.ErrStall, err)
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut):
		return fmt.Errorf("%w: %v", pkg.ErrTimeout, err)
	case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.TransferNoDevice):
		return fmt.Errorf("%w: %v", pkg.ErrNoDevice, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", pkg.ErrCancelled, err)
	default:
		return err
	}
}
