package pkg

import "errors"

// USB transport errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the HAL or driver has not been initialized.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the stack is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")

	// ErrDetached indicates a handler transferred control away from the
	// stack (bootloader entry). No status stage follows.
	ErrDetached = errors.New("control transferred to bootloader")
)

// Radio configuration errors.
var (
	// ErrShortTransfer indicates a data stage whose length does not match
	// the width of the addressed field.
	ErrShortTransfer = errors.New("data stage length mismatch")

	// ErrUnknownField indicates a configuration field selector that the
	// mirror does not hold.
	ErrUnknownField = errors.New("unknown configuration field")

	// ErrOutOfRange indicates a configuration value the transceiver cannot
	// be programmed with.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)
