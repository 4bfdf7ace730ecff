package usb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/gousb"

	"github.com/satlab/bluebox/pkg"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pipe", gousb.ErrorPipe, pkg.ErrStall},
		{"stall", gousb.TransferStall, pkg.ErrStall},
		{"timeout", gousb.ErrorTimeout, pkg.ErrTimeout},
		{"transfer timeout", gousb.TransferTimedOut, pkg.ErrTimeout},
		{"no device", gousb.ErrorNoDevice, pkg.ErrNoDevice},
		{"wrapped", fmt.Errorf("control: %w", gousb.ErrorPipe), pkg.ErrStall},
		{"cancelled", context.Canceled, pkg.ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) != nil")
	}
	other := errors.New("other")
	if mapError(other) != other {
		t.Error("mapError did not pass through unknown error")
	}
}
