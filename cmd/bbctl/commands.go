package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/satlab/bluebox/host"
	"github.com/satlab/bluebox/host/usb"
	"github.com/satlab/bluebox/pkg"
)

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, pkg.ErrInvalidParameter)
	}
	return v, nil
}

// uintField runs a getter or, when value is set, a setter for an unsigned
// field of the given bit size.
func uintField(value string, bits int, get func() (uint64, error), set func(uint64) error, w io.Writer) error {
	if value == "" {
		v, err := get()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, v)
		return nil
	}
	v, err := parseUint(value, bits)
	if err != nil {
		return err
	}
	return set(v)
}

// run executes one parsed command. t is the transport behind c.
func run(ctx context.Context, command string, c *host.Client, t host.Transport, w io.Writer) error {
	switch command {
	case "reg-read <reg>":
		reg, err := parseUint(cli.RegRead.Reg, 8)
		if err != nil {
			return err
		}
		v, err := c.RegRead(ctx, uint8(reg))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "0x%04X\n", v)

	case "reg-write <reg> <value>":
		reg, err := parseUint(cli.RegWrite.Reg, 4)
		if err != nil {
			return err
		}
		v, err := parseUint(cli.RegWrite.Value, 32)
		if err != nil {
			return err
		}
		return c.RegWrite(ctx, uint8(reg), uint32(v))

	case "freq", "freq <value>":
		return uintField(cli.Freq.Value, 32,
			func() (uint64, error) { v, err := c.Frequency(ctx); return uint64(v), err },
			func(v uint64) error { return c.SetFrequency(ctx, uint32(v)) }, w)

	case "modindex", "modindex <value>":
		return uintField(cli.ModIndex.Value, 8,
			func() (uint64, error) { v, err := c.ModIndex(ctx); return uint64(v), err },
			func(v uint64) error { return c.SetModIndex(ctx, uint8(v)) }, w)

	case "power", "power <value>":
		return uintField(cli.Power.Value, 8,
			func() (uint64, error) { v, err := c.Power(ctx); return uint64(v), err },
			func(v uint64) error { return c.SetPower(ctx, uint8(v)) }, w)

	case "ifbw", "ifbw <value>":
		return uintField(cli.IFBW.Value, 8,
			func() (uint64, error) { v, err := c.IFBandwidth(ctx); return uint64(v), err },
			func(v uint64) error { return c.SetIFBandwidth(ctx, uint8(v)) }, w)

	case "afc", "afc <value>":
		return uintField(cli.AFC.Value, 1,
			func() (uint64, error) {
				on, err := c.AFC(ctx)
				if on {
					return 1, err
				}
				return 0, err
			},
			func(v uint64) error { return c.SetAFC(ctx, v != 0) }, w)

	case "csma-rssi", "csma-rssi <value>":
		if cli.CSMARSSI.Value == "" {
			v, err := c.CSMARSSI(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, v)
			return nil
		}
		v, err := strconv.ParseInt(cli.CSMARSSI.Value, 0, 16)
		if err != nil {
			return fmt.Errorf("%q: %w", cli.CSMARSSI.Value, pkg.ErrInvalidParameter)
		}
		return c.SetCSMARSSI(ctx, int16(v))

	case "tx":
		return c.TxMode(ctx)

	case "rx":
		return c.RxMode(ctx)

	case "bootloader":
		c.Bootloader(ctx)

	case "version":
		v, err := c.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "0x%04X\n", v)

	case "rssi":
		v, err := c.RSSI(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d dBm\n", v)

	case "testmode <pattern>":
		p, err := parseUint(cli.TestMode.Pattern, 8)
		if err != nil {
			return err
		}
		return c.TestMode(ctx, uint8(p))

	case "dump":
		cfg, err := c.Dump(ctx)
		if err != nil {
			return err
		}
		return yaml.NewEncoder(w).Encode(cfg)

	case "send <text>":
		_, err := c.DataWrite(ctx, []byte(cli.Send.Text))
		return err

	case "recv":
		data, err := c.DataRead(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", data)

	case "info":
		u, ok := t.(*usb.Transport)
		if !ok {
			return fmt.Errorf("info needs a USB device: %w", pkg.ErrInvalidRequest)
		}
		info, err := u.Info()
		if err != nil {
			return err
		}
		return yaml.NewEncoder(w).Encode(info)

	default:
		return fmt.Errorf("command %q: %w", command, pkg.ErrInvalidRequest)
	}
	return nil
}
