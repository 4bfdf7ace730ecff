// Command bluebox serves a bluebox radio on the FIFO bus.
//
// Usage:
//
//	bluebox [-c bluebox.hcl] [-v] [--cpu-profile FILE] run [--bus-dir DIR]
//	bluebox defaults
//	bluebox settings
//
// The transceiver is either simulated or attached over SPI, selected by
// the spi section of the configuration. See package config for the file
// format and environment overrides.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/satlab/bluebox/config"
	"github.com/satlab/bluebox/pkg"
	"github.com/satlab/bluebox/pkg/prof"
)

const component = pkg.ComponentDaemon

var cli struct {
	Config     string `help:"Configuration file (HCL). Searched for when omitted." short:"c" type:"path"`
	Verbose    bool   `help:"Enable debug logging" short:"v"`
	CPUProfile string `help:"Write a CPU profile to this file" name:"cpu-profile" type:"path"`

	Run struct {
		BusDir string `help:"Bus directory, overrides bus.dir" name:"bus-dir"`
	} `cmd:"" default:"1" help:"Serve the radio until interrupted or the bootloader is entered"`
	Defaults struct {
	} `cmd:"" help:"Print the effective radio defaults as YAML"`
	Settings struct {
	} `cmd:"" help:"Print all effective settings as YAML"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("bluebox"),
		kong.Description("USB radio bridge for the ADF7021 transceiver"))

	path := cli.Config
	if path == "" {
		path = config.Find()
	}
	settings, err := config.Load(path)
	if err != nil {
		pkg.LogError(component, "could not load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(settings.Log)

	os.Exit(execute(ctx.Command(), settings))
}

// execute runs command and returns the process exit code.
func execute(command string, settings config.Settings) int {
	if cli.CPUProfile != "" {
		if err := prof.StartCPU(cli.CPUProfile); err != nil {
			pkg.LogError(component, "could not start cpu profile", "error", err)
			return 1
		}
		defer prof.StopCPU()
	}

	switch command {
	case "run":
		if cli.Run.BusDir != "" {
			settings.Bus.Dir = cli.Run.BusDir
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err := serve(ctx, settings)
		switch {
		case errors.Is(err, pkg.ErrDetached):
			pkg.LogInfo(component, "detached for bootloader")
		case err != nil:
			pkg.LogError(component, "serve failed", "error", err)
			return 1
		}

	case "defaults":
		return printYAML(os.Stdout, settings.Radio)

	case "settings":
		return printYAML(os.Stdout, settings)

	default:
		pkg.LogError(component, "command not recognized", "command", command)
		return 2
	}
	return 0
}

func setupLogging(conf config.LogConf) {
	pkg.SetLogFormat(pkg.ParseLogFormat(conf.Format))
	level, err := conf.SlogLevel()
	if err != nil {
		level = slog.LevelWarn
	}
	if cli.Verbose {
		level = slog.LevelDebug
	}
	pkg.SetLogLevel(level)
}

func printYAML(w io.Writer, v any) int {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(v)
	if err == nil {
		err = enc.Close()
	}
	if err != nil {
		pkg.LogError(component, "encode yaml", "error", err)
		return 1
	}
	return 0
}
