package device

import (
	"context"
	"io"

	"github.com/satlab/bluebox/device/hal"
	"github.com/satlab/bluebox/pkg"
)

// MaxControlDataSize is the largest data stage the stack moves in one call.
const MaxControlDataSize = 512

// ControlHandler services the data stage of a control request.
//
// The handler returns nil to acknowledge the request. Any other error
// stalls EP0, except pkg.ErrDetached, which ends the control session
// without a status stage.
type ControlHandler interface {
	HandleSetup(setup *SetupPacket, pipe *ControlPipe) error
}

// ControlHandlerFunc adapts a function to ControlHandler.
type ControlHandlerFunc func(setup *SetupPacket, pipe *ControlPipe) error

// HandleSetup calls f(setup, pipe).
func (f ControlHandlerFunc) HandleSetup(setup *SetupPacket, pipe *ControlPipe) error {
	return f(setup, pipe)
}

// ControlPipe gives a handler access to the data stage of one control
// transfer. OUT reads and IN writes are bounded by wLength.
type ControlPipe struct {
	ctx     context.Context
	hal     hal.DeviceHAL
	setup   *SetupPacket
	pending int // OUT bytes not yet consumed
	written bool
	buf     [MaxControlDataSize]byte
}

func (p *ControlPipe) reset(ctx context.Context, h hal.DeviceHAL, setup *SetupPacket) {
	p.ctx = ctx
	p.hal = h
	p.setup = setup
	p.written = false
	p.pending = 0
	if setup.IsHostToDevice() {
		p.pending = int(setup.Length)
	}
}

// Setup returns the setup packet of the transfer.
func (p *ControlPipe) Setup() *SetupPacket {
	return p.setup
}

// Read reads OUT data-stage bytes into buf. It returns fewer than
// len(buf) bytes only when the host sent less data than requested, and
// io.EOF once the data stage is exhausted.
func (p *ControlPipe) Read(buf []byte) (int, error) {
	if p.setup.IsDeviceToHost() {
		return 0, pkg.ErrInvalidRequest
	}
	total := 0
	for total < len(buf) && p.pending > 0 {
		want := min(len(buf)-total, p.pending)
		n, err := p.hal.ReadEP0(p.ctx, buf[total:total+want])
		total += n
		p.pending -= n
		if err != nil {
			return total, err
		}
		if n == 0 {
			// Host sent a short data stage.
			p.pending = 0
		}
	}
	if total == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Write sends the IN data stage. Data beyond wLength is dropped. Write
// may be called once per transfer.
func (p *ControlPipe) Write(data []byte) (int, error) {
	if p.setup.IsHostToDevice() {
		return 0, pkg.ErrInvalidRequest
	}
	if p.written {
		return 0, pkg.ErrProtocol
	}
	if len(data) > int(p.setup.Length) {
		data = data[:p.setup.Length]
	}
	p.written = true
	if err := p.hal.WriteEP0(p.ctx, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// complete finishes the data stage and acknowledges the transfer.
func (p *ControlPipe) complete() error {
	if p.setup.IsDeviceToHost() {
		if !p.written {
			p.written = true
			if err := p.hal.WriteEP0(p.ctx, nil); err != nil {
				return err
			}
		}
	} else {
		for p.pending > 0 {
			_, err := p.Read(p.buf[:min(p.pending, len(p.buf))])
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
	}
	return p.hal.AckEP0()
}
