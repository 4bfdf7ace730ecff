// Package usb is a host transport for bluebox hardware using libusb
// through github.com/google/gousb.
package usb
