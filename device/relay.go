package device

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/satlab/bluebox/device/hal"
	"github.com/satlab/bluebox/pkg"
)

// MaxRelayPacketSize is the largest payload the relay copies at once.
const MaxRelayPacketSize = 64

// relayWait bounds how long one Poll waits for OUT data.
const relayWait = time.Millisecond

// Relay copies payloads received on an OUT endpoint to an IN endpoint
// without looking at them.
type Relay struct {
	hal hal.DeviceHAL
	out uint8
	in  uint8
	buf [MaxRelayPacketSize]byte

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewRelay creates a relay from endpoint out to endpoint in.
func NewRelay(h hal.DeviceHAL, out, in uint8) *Relay {
	return &Relay{hal: h, out: out, in: in}
}

// Poll moves at most one payload. It returns nil when no payload is waiting.
func (r *Relay) Poll(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, relayWait)
	n, err := r.hal.Read(readCtx, r.out, r.buf[:])
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}

	if _, err := r.hal.Write(ctx, r.in, r.buf[:n]); err != nil {
		return err
	}
	r.packets.Add(1)
	r.bytes.Add(uint64(n))
	pkg.LogDebug(pkg.ComponentRelay, "payload relayed", "bytes", n)
	return nil
}

// Stats returns the number of payloads and bytes relayed.
func (r *Relay) Stats() (packets, bytes uint64) {
	return r.packets.Load(), r.bytes.Load()
}
