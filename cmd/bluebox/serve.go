package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/periph/conn/physic"

	"github.com/satlab/bluebox/adf7021"
	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/config"
	"github.com/satlab/bluebox/device"
	"github.com/satlab/bluebox/device/hal/fifo"
	"github.com/satlab/bluebox/metrics"
	"github.com/satlab/bluebox/notify"
	"github.com/satlab/bluebox/pkg"
	"github.com/satlab/bluebox/pkg/prof"
)

// metricsMux serves /metrics from g and, when pprof is set, the runtime
// profiles under /debug/pprof/.
func metricsMux(g prometheus.Gatherer, pprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	if pprof {
		prof.Register(mux)
	}
	return mux
}

// bootloader powers the transceiver down before the device detaches.
type bootloader struct {
	bus adf7021.Bus
}

func (b bootloader) EnterBootloader() error {
	if ce, ok := b.bus.(adf7021.ChipEnabler); ok {
		if err := ce.SetChipEnable(false); err != nil {
			return err
		}
	}
	pkg.LogInfo(component, "transceiver powered down for bootloader")
	return nil
}

func openBus(conf config.SPIConf) (adf7021.Bus, func(), error) {
	if conf.Simulate {
		pkg.LogInfo(component, "using simulated transceiver")
		return adf7021.NewSim(), func() {}, nil
	}
	bus, err := adf7021.OpenSPI(conf.Port, physic.Frequency(conf.SpeedHz)*physic.Hertz, conf.CEPin)
	if err != nil {
		return nil, nil, err
	}
	return bus, func() { bus.Close() }, nil
}

func serve(ctx context.Context, s config.Settings) error {
	bus, closeBus, err := openBus(s.SPI)
	if err != nil {
		return err
	}
	defer closeBus()

	trx := adf7021.New(bus, s.SPI.XtalHz)
	if err := trx.PowerOn(s.Radio); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	if v, err := trx.Version(); err == nil {
		pkg.LogInfo(component, "transceiver ready", "version", fmt.Sprintf("0x%04X", v))
	}

	h := fifo.New(s.Bus.Dir)

	var observers bluebox.Observers
	var relay *device.Relay
	if s.Bus.Relay {
		relay = device.NewRelay(h, bluebox.EndpointDataOut, bluebox.EndpointDataIn)
	}

	if s.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		m.SetConfig(s.Radio)
		if relay != nil {
			metrics.RegisterRelay(reg, relay)
		}
		observers = append(observers, m)

		srv := &http.Server{
			Addr:              s.Metrics.Listen,
			Handler:           metricsMux(reg, s.Metrics.Pprof),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				pkg.LogError(pkg.ComponentMetrics, "metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		pkg.LogInfo(pkg.ComponentMetrics, "serving metrics", "listen", s.Metrics.Listen)
	}

	if s.MQTT.Broker != "" {
		client, err := notify.Connect(s.MQTT.Broker, s.MQTT.ClientID)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		observers = append(observers, notify.New(client, notify.Options{
			Topic:  s.MQTT.Topic,
			QoS:    s.MQTT.QoS,
			Retain: s.MQTT.Retain,
		}))
	}

	opts := s.DispatchOptions()
	if len(observers) > 0 {
		opts.Observer = observers
	}
	hw := bluebox.Hardware{
		Registers:  trx,
		Programmer: trx,
		Modes:      trx,
		Bootloader: bootloader{bus: bus},
	}
	disp := bluebox.NewDispatcher(bluebox.NewMirror(s.Radio), hw, opts)

	stack := device.NewStack(h, disp)
	stack.SetPollInterval(s.Bus.PollInterval)
	if relay != nil {
		stack.AddTask(relay)
	}

	pkg.LogInfo(component, "serving", "busDir", s.Bus.Dir, "strictLength", s.Dispatch.StrictLength)
	return stack.Run(ctx)
}
