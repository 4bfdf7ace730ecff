// Package hal defines the hardware abstraction between the bluebox control
// stack and a USB device controller.
//
// The stack implements the control request protocol (setup, data and status
// stages) and leaves the HAL to move bytes. Standard enumeration requests
// are answered below this layer, so a [DeviceHAL] only surfaces vendor and
// class requests on EP0 plus the bulk data endpoints.
//
// # Implementing a HAL
//
//  1. Create a type that implements all [DeviceHAL] methods
//  2. Handle controller initialization in Init()
//  3. Serve the OUT data stage through ReadEP0 and the IN data stage
//     through WriteEP0
//  4. Implement Read/Write for the data endpoints
//
// A named-pipe HAL used by the simulator and the integration tests is in
// [github.com/satlab/bluebox/device/hal/fifo].
package hal
