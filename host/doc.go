// Package host is the host-side client for a bluebox.
//
// A [Client] issues the bluebox class requests over a [Transport]:
// register access, the radio configuration fields, TX/RX switching,
// bootloader entry and the chip readbacks. Transports are provided by
// [github.com/satlab/bluebox/host/usb] for real hardware and
// [github.com/satlab/bluebox/host/fifo] for the simulator.
//
// # Example
//
//	t, err := usb.OpenDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c := host.NewClient(t)
//	defer c.Close()
//
//	if err := c.SetFrequency(ctx, 437425000); err != nil {
//	    log.Fatal(err)
//	}
//	dbm, err := c.RSSI(ctx)
package host
