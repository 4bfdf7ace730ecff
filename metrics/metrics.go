package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/pkg"
)

const namespace = "bluebox"

// Metrics exports dispatcher activity and the mirror state. It implements
// bluebox.Observer.
type Metrics struct {
	requests       *prometheus.CounterVec // by opcode, direction, kind
	failures       *prometheus.CounterVec // by opcode, direction
	configChanges  *prometheus.CounterVec // by field
	configValue    *prometheus.GaugeVec   // by field
	reprograms     prometheus.Counter
	reprogramFails prometheus.Counter
	detaches       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Control requests dispatched, by opcode, direction and handler kind",
			},
			[]string{"opcode", "direction", "kind"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_failures_total",
				Help:      "Control requests that were stalled",
			},
			[]string{"opcode", "direction"},
		),
		configChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_changes_total",
				Help:      "Mirror field writes, by field",
			},
			[]string{"field"},
		),
		configValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_value",
				Help:      "Current mirror value of each host-settable field",
			},
			[]string{"field"},
		),
		reprograms: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprograms_total",
			Help:      "Transceiver reprograms after a field write",
		}),
		reprogramFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprogram_errors_total",
			Help:      "Transceiver reprograms that failed",
		}),
		detaches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootloader_entries_total",
			Help:      "Bootloader requests that detached the device",
		}),
	}
}

// SetConfig publishes every field of cfg.
func (m *Metrics) SetConfig(cfg bluebox.Config) {
	for _, f := range bluebox.Fields {
		v, err := cfg.Get(f)
		if err != nil {
			continue
		}
		value := float64(v)
		if f == bluebox.FieldCSMARSSI {
			value = float64(int16(uint16(v)))
		}
		m.configValue.WithLabelValues(f.String()).Set(value)
	}
}

// RequestHandled implements bluebox.Observer.
func (m *Metrics) RequestHandled(tx bluebox.Transaction, kind bluebox.Kind, err error) {
	op, dir := tx.Opcode.String(), tx.Direction.String()
	m.requests.WithLabelValues(op, dir, kind.String()).Inc()
	switch {
	case err == nil:
	case errors.Is(err, pkg.ErrDetached):
		m.detaches.Inc()
	default:
		m.failures.WithLabelValues(op, dir).Inc()
	}
}

// ConfigChanged implements bluebox.Observer.
func (m *Metrics) ConfigChanged(field bluebox.Field, cfg bluebox.Config) {
	m.configChanges.WithLabelValues(field.String()).Inc()
	m.SetConfig(cfg)
}

// Reprogrammed implements bluebox.Observer.
func (m *Metrics) Reprogrammed(cfg bluebox.Config, err error) {
	m.reprograms.Inc()
	if err != nil {
		m.reprogramFails.Inc()
	}
}

// RelayStats reports relayed payloads and bytes.
type RelayStats interface {
	Stats() (packets, bytes uint64)
}

// RegisterRelay exports the counters of a data relay.
func RegisterRelay(reg prometheus.Registerer, r RelayStats) {
	factory := promauto.With(reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_packets_total",
		Help:      "Payloads copied from the data OUT to the data IN endpoint",
	}, func() float64 {
		packets, _ := r.Stats()
		return float64(packets)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_bytes_total",
		Help:      "Bytes copied from the data OUT to the data IN endpoint",
	}, func() float64 {
		_, bytes := r.Stats()
		return float64(bytes)
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ bluebox.Observer = (*Metrics)(nil)
