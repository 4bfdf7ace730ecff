package bluebox

import (
	"sync"

	"github.com/satlab/bluebox/pkg"
)

// Mirror is the process-wide record of the last commanded radio
// parameters. Set never validates values and never touches hardware.
type Mirror struct {
	mutex sync.RWMutex
	cfg   Config
}

// NewMirror creates a mirror holding cfg.
func NewMirror(cfg Config) *Mirror {
	return &Mirror{cfg: cfg}
}

// Get returns the current value of a field.
func (m *Mirror) Get(f Field) (uint32, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.cfg.Get(f)
}

// Set overwrites exactly one field.
func (m *Mirror) Set(f Field, v uint32) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.cfg.Set(f, v); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentMirror, "field set", "field", f.String(), "value", v)
	return nil
}

// Snapshot returns a copy of the whole configuration.
func (m *Mirror) Snapshot() Config {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.cfg
}
