package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satlab/bluebox/device/hal"
	"github.com/satlab/bluebox/pkg"
)

// DefaultPollInterval bounds how long one loop iteration waits for a
// SETUP packet before servicing tasks again.
const DefaultPollInterval = 10 * time.Millisecond

// Task is work serviced once per loop iteration, before EP0.
type Task interface {
	Poll(ctx context.Context) error
}

// Stack runs the cooperative service loop: every iteration polls each task
// and then services at most one control transfer. Control handlers never
// run concurrently with each other or with tasks.
type Stack struct {
	hal     hal.DeviceHAL
	handler ControlHandler
	tasks   []Task

	pollInterval time.Duration

	running bool
	cancel  context.CancelFunc
	mutex   sync.Mutex

	// Reusable setup packet for zero-allocation reads
	setupBuf hal.SetupPacket
	setup    SetupPacket
	pipe     ControlPipe
}

// NewStack creates a stack that routes control requests to handler.
func NewStack(h hal.DeviceHAL, handler ControlHandler) *Stack {
	return &Stack{
		hal:          h,
		handler:      handler,
		pollInterval: DefaultPollInterval,
	}
}

// AddTask appends a task to the loop. Tasks run in the order added.
func (s *Stack) AddTask(t Task) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tasks = append(s.tasks, t)
}

// SetPollInterval sets how long each iteration waits for a SETUP packet.
func (s *Stack) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pollInterval = d
}

// Run initializes the HAL and services the loop until ctx is cancelled,
// Stop is called, or a handler detaches. Detaching returns pkg.ErrDetached.
func (s *Stack) Run(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	tasks := append([]Task(nil), s.tasks...)
	interval := s.pollInterval
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.running = false
		s.cancel()
		s.mutex.Unlock()
	}()

	if err := s.hal.Init(ctx); err != nil {
		return err
	}
	if err := s.hal.Start(); err != nil {
		s.hal.Stop()
		return err
	}
	defer s.hal.Stop()

	pkg.LogDebug(pkg.ComponentStack, "device stack started", "tasks", len(tasks))

	for ctx.Err() == nil {
		for _, t := range tasks {
			if err := t.Poll(ctx); err != nil && ctx.Err() == nil {
				pkg.LogWarn(pkg.ComponentStack, "task failed", "error", err)
			}
		}

		if err := s.poll(ctx, interval); err != nil {
			if errors.Is(err, pkg.ErrDetached) {
				pkg.LogInfo(pkg.ComponentStack, "control detached, stopping")
				return err
			}
			if ctx.Err() != nil {
				break
			}
			pkg.LogWarn(pkg.ComponentStack, "error servicing EP0", "error", err)
		}
	}

	pkg.LogDebug(pkg.ComponentStack, "device stack stopped")
	return nil
}

// Stop cancels a running loop.
func (s *Stack) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.running {
		s.cancel()
	}
}

// IsRunning returns true while Run is executing.
func (s *Stack) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// poll waits up to interval for a SETUP packet and services it.
func (s *Stack) poll(ctx context.Context, interval time.Duration) error {
	pollCtx, cancel := context.WithTimeout(ctx, interval)
	err := s.hal.ReadSetup(pollCtx, &s.setupBuf)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil
	case errors.Is(err, pkg.ErrReset):
		pkg.LogDebug(pkg.ComponentStack, "bus reset")
		return nil
	default:
		return err
	}

	s.setup.FromHAL(&s.setupBuf)
	return s.handleSetup(ctx, &s.setup)
}

// handleSetup processes a single control transfer.
func (s *Stack) handleSetup(ctx context.Context, setup *SetupPacket) error {
	pkg.LogDebug(pkg.ComponentStack, "setup received", "request", setup.String())

	s.pipe.reset(ctx, s.hal, setup)
	err := s.handler.HandleSetup(setup, &s.pipe)
	switch {
	case err == nil:
		return s.pipe.complete()
	case errors.Is(err, pkg.ErrDetached):
		return err
	default:
		pkg.LogWarn(pkg.ComponentStack, "error handling setup",
			"error", err,
			"request", setup.String())
		return s.hal.StallEP0()
	}
}
