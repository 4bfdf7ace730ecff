// Package device implements the device side of the bluebox USB link.
//
// It interacts with hardware via the [hal.DeviceHAL] interface defined in
// [github.com/satlab/bluebox/device/hal]. Enumeration is handled below the
// HAL, so this package only deals with class requests on EP0 and the data
// endpoints.
//
// # Architecture
//
//   - [Stack] runs a single cooperative loop: each iteration polls every
//     [Task] and then services at most one control transfer
//   - [ControlHandler] receives each SETUP packet together with a
//     [ControlPipe] bound to its data stage
//   - [Relay] is a Task that copies payloads from an OUT endpoint to an IN
//     endpoint
//
// # Control Transfers
//
// A handler reads the OUT data stage or writes the IN data stage through
// the pipe. When it returns nil the stack drains unread OUT bytes, sends a
// zero-length packet for an unanswered IN request and acknowledges the
// status stage. A non-nil error stalls EP0. [pkg.ErrDetached] ends the loop
// with no status stage.
//
// # Example
//
//	stack := device.NewStack(fifo.New("/tmp/bluebox-bus"), dispatcher)
//	stack.AddTask(device.NewRelay(h, 0x02, 0x81))
//	err := stack.Run(ctx)
package device
