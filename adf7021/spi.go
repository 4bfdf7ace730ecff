package adf7021

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/satlab/bluebox/pkg"
)

// DefaultSPISpeed is the SPI clock used when none is configured.
const DefaultSPISpeed = 1 * physic.MegaHertz

// SPIBus is a Bus on a periph.io SPI port, with an optional CE pin.
type SPIBus struct {
	port spi.PortCloser
	conn spi.Conn
	ce   gpio.PinOut
}

// OpenSPI opens an SPI port by name ("" selects the first one). ce names
// the GPIO wired to the chip enable pin and may be empty.
func OpenSPI(name string, speed physic.Frequency, ce string) (*SPIBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", name, err)
	}
	if speed == 0 {
		speed = DefaultSPISpeed
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi %q: %w", name, err)
	}

	b := &SPIBus{port: port, conn: conn}
	if ce != "" {
		pin := gpioreg.ByName(ce)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("ce pin %q: %w", ce, pkg.ErrNoDevice)
		}
		b.ce = pin
	}

	pkg.LogInfo(pkg.ComponentRadio, "spi bus opened", "port", port.String(), "speed", speed.String())
	return b, nil
}

// Tx implements Bus.
func (b *SPIBus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}

// SetChipEnable drives the CE pin. It is a no-op without one.
func (b *SPIBus) SetChipEnable(on bool) error {
	if b.ce == nil {
		return nil
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return b.ce.Out(level)
}

// Close releases the port.
func (b *SPIBus) Close() error {
	if b.ce != nil {
		b.ce.Out(gpio.Low)
	}
	return b.port.Close()
}
