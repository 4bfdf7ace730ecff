// Package adf7021 drives an Analog Devices ADF7021 narrow-band transceiver.
//
// The chip has sixteen write-only 32-bit registers whose low four bits hold
// the register address. Status is read through the readback register (R7):
// writing a readback select there makes the chip clock out a 16-bit value.
//
// [Compute] derives the full register set from a [bluebox.Config].
// [Transceiver] writes it over a [Bus] and implements the register access,
// programming and mode switching interfaces of the dispatcher. [OpenSPI]
// provides a Bus on Linux SPI devices through periph.io, and [Sim] is an
// in-memory chip used by the simulator and tests.
package adf7021
