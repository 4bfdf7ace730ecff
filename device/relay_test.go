package device

import (
	"bytes"
	"context"
	"testing"
)

func TestRelayCopiesPayload(t *testing.T) {
	m := newMockHAL()
	m.epData[0x02] = [][]byte{[]byte("hello"), []byte("radio")}
	r := NewRelay(m, 0x02, 0x81)
	ctx := context.Background()

	for range 3 {
		if err := r.Poll(ctx); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
	}

	got := m.written[0x81]
	if len(got) != 2 || !bytes.Equal(got[0], []byte("hello")) || !bytes.Equal(got[1], []byte("radio")) {
		t.Errorf("IN payloads = %q, want [hello radio]", got)
	}
	packets, n := r.Stats()
	if packets != 2 || n != 10 {
		t.Errorf("Stats() = %d, %d; want 2, 10", packets, n)
	}
}

func TestRelayIdle(t *testing.T) {
	m := newMockHAL()
	r := NewRelay(m, 0x02, 0x81)

	if err := r.Poll(context.Background()); err != nil {
		t.Errorf("Poll() with no data error = %v, want nil", err)
	}
	if len(m.written) != 0 {
		t.Errorf("unexpected IN writes: %v", m.written)
	}
}

func TestRelayCancelled(t *testing.T) {
	m := newMockHAL()
	r := NewRelay(m, 0x02, 0x81)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Poll(ctx); err == nil {
		t.Error("Poll() on cancelled context error = nil")
	}
}
