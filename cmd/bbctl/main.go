// Command bbctl controls a bluebox from the host.
//
// Without --bus-dir the device is opened over libusb by its VID/PID. With
// --bus-dir the FIFO simulator served by the bluebox daemon is used.
//
// Getter/setter commands read the value when called without an argument.
// Negative values must follow "--", e.g. "bbctl csma-rssi -- -90".
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/satlab/bluebox/host"
	"github.com/satlab/bluebox/host/fifo"
	"github.com/satlab/bluebox/host/usb"
	"github.com/satlab/bluebox/pkg"
)

const component = pkg.ComponentCLI

type valueArg struct {
	Value string `arg:"" optional:"" help:"New value; omit to read"`
}

var cli struct {
	BusDir  string        `help:"Use the FIFO simulator bus in this directory" name:"bus-dir" type:"path"`
	Timeout time.Duration `help:"Per-command timeout" default:"5s"`
	Verbose bool          `help:"Enable debug logging" short:"v"`

	RegRead struct {
		Reg string `arg:"" help:"Register number or readback select"`
	} `cmd:"" name:"reg-read" help:"Read a register"`
	RegWrite struct {
		Reg   string `arg:"" help:"Register number"`
		Value string `arg:"" help:"Register value"`
	} `cmd:"" name:"reg-write" help:"Write a register"`

	Freq       valueArg `cmd:"" help:"Carrier frequency in Hz"`
	ModIndex   valueArg `cmd:"" name:"modindex" help:"Modulation index in 1/32 steps"`
	CSMARSSI   valueArg `cmd:"" name:"csma-rssi" help:"Carrier-sense threshold in dBm"`
	Power      valueArg `cmd:"" help:"PA setting"`
	AFC        valueArg `cmd:"" name:"afc" help:"Automatic frequency control (0 or 1)"`
	IFBW       valueArg `cmd:"" name:"ifbw" help:"IF filter bandwidth setting"`
	Tx         struct{} `cmd:"" help:"Switch to transmit"`
	Rx         struct{} `cmd:"" help:"Switch to receive"`
	Bootloader struct{} `cmd:"" help:"Restart the device into its bootloader"`
	Version    struct{} `cmd:"" help:"Print the transceiver silicon revision"`
	RSSI       struct{} `cmd:"" name:"rssi" help:"Print the received signal strength in dBm"`
	TestMode   struct {
		Pattern string `arg:"" help:"Pattern 1-6, 0 turns test mode off"`
	} `cmd:"" name:"testmode" help:"Select a transmit test pattern"`
	Dump struct{} `cmd:"" help:"Print every field as YAML"`
	Send struct {
		Text string `arg:"" help:"Payload to send"`
	} `cmd:"" help:"Send a payload on the data endpoint"`
	Recv struct{} `cmd:"" help:"Receive one payload from the data endpoint"`
	Info struct{} `cmd:"" help:"Print the USB string descriptors"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("bbctl"),
		kong.Description("bluebox control tool"))

	if cli.Verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()

	t, err := openTransport(ctx)
	if err != nil {
		pkg.LogError(component, "could not open device", "error", err)
		os.Exit(1)
	}
	c := host.NewClient(t)
	defer c.Close()

	if err := run(ctx, kctx.Command(), c, t, os.Stdout); err != nil {
		pkg.LogError(component, "command failed", "command", kctx.Command(), "error", err)
		c.Close()
		os.Exit(1)
	}
}

func openTransport(ctx context.Context) (host.Transport, error) {
	if cli.BusDir != "" {
		return fifo.Open(ctx, cli.BusDir)
	}
	return usb.OpenDefault()
}
