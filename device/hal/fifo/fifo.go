package fifo

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/satlab/bluebox/device/hal"
	"github.com/satlab/bluebox/pkg"
)

// MaxEndpoints is the maximum number of data endpoints (1-15 IN and OUT).
const MaxEndpoints = 15

// MaxPacketSize is the maximum payload of a single message.
const MaxPacketSize = 1024

// Message types of the bus protocol. The host side in
// github.com/satlab/bluebox/host/fifo uses the same values.
const (
	MsgSetup   = 0x01 // SETUP packet from host, OUT data stage appended
	MsgData    = 0x02 // DATA packet
	MsgAck     = 0x03 // status stage completed
	MsgNak     = 0x04 // NAK response
	MsgStall   = 0x05 // STALL response
	MsgReset   = 0x12 // port reset
	MsgAddress = 0x13 // set address
)

// HeaderSize is the size of a message header: type (1) + length (2).
const HeaderSize = 3

// Connection signal bytes (one-way signaling to host).
const (
	SigConnect    = 0x01 // device connected
	SigDisconnect = 0x00 // device disconnected
)

// FIFO file names inside a device directory.
const (
	FileHostToDevice = "host_to_device"
	FileDeviceToHost = "device_to_host"
	FileConnection   = "connection"
)

// DirPrefix starts the name of every device directory on the bus.
const DirPrefix = "device-"

// readSlice bounds a single blocking read so that close and cancellation
// are noticed.
const readSlice = 100 * time.Millisecond

// EndpointFile returns the FIFO name of a data endpoint address.
func EndpointFile(address uint8) string {
	if address&0x80 != 0 {
		return fmt.Sprintf("ep%d_in", address&0x0F)
	}
	return fmt.Sprintf("ep%d_out", address&0x0F)
}

// HAL implements hal.DeviceHAL using named pipes (FIFOs).
// Each device instance creates a unique subdirectory under the bus directory.
type HAL struct {
	busDir    string
	deviceDir string
	id        string

	hostToDevice *os.File
	deviceToHost *os.File
	connection   *os.File

	// Data endpoint FIFOs indexed by endpoint number - 1.
	epIn  [MaxEndpoints]*os.File
	epOut [MaxEndpoints]*os.File

	connected uint32
	address   uint8

	mutex     sync.RWMutex
	writeMu   sync.Mutex
	initDone  bool
	closeCh   chan struct{}
	closeOnce sync.Once

	readBuf  [HeaderSize + 1 + hal.SetupPacketSize + MaxPacketSize]byte
	writeBuf [HeaderSize + MaxPacketSize]byte

	// OUT data stage of the current control transfer.
	ep0Out    [MaxPacketSize]byte
	ep0OutLen int
	ep0OutPos int

	// Undelivered tail of the last DATA message per OUT endpoint.
	epOutPending [MaxEndpoints][]byte
}

// New creates a new FIFO-based device HAL rooted at busDir.
func New(busDir string) *HAL {
	return &HAL{
		busDir:  busDir,
		closeCh: make(chan struct{}),
	}
}

// Init creates the device subdirectory and its FIFOs.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.id = uuid.NewString()
	h.deviceDir = filepath.Join(h.busDir, DirPrefix+h.id)

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	// The connection FIFO comes last; hosts take its presence to mean the
	// directory is complete.
	names := []string{FileHostToDevice, FileDeviceToHost}
	for i := uint8(1); i <= MaxEndpoints; i++ {
		names = append(names, EndpointFile(0x80|i), EndpointFile(i))
	}
	names = append(names, FileConnection)
	for _, name := range names {
		if err := h.createFIFO(name); err != nil {
			h.cleanup()
			return err
		}
	}

	// O_RDWR keeps the open from blocking until the host attaches.
	var err error
	open := func(name string) *os.File {
		if err != nil {
			return nil
		}
		var f *os.File
		f, err = h.openFIFO(name)
		return f
	}
	h.connection = open(FileConnection)
	h.deviceToHost = open(FileDeviceToHost)
	h.hostToDevice = open(FileHostToDevice)
	for i := uint8(1); i <= MaxEndpoints; i++ {
		h.epIn[i-1] = open(EndpointFile(0x80 | i))
		h.epOut[i-1] = open(EndpointFile(i))
	}
	if err != nil {
		h.cleanup()
		return err
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir,
		"uuid", h.id)
	return nil
}

// Start signals connection to the host.
func (h *HAL) Start() error {
	h.mutex.RLock()
	ready, conn := h.initDone, h.connection
	h.mutex.RUnlock()
	if !ready {
		return pkg.ErrNotConfigured
	}

	if _, err := conn.Write([]byte{SigConnect}); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal connection", "error", err)
	}
	atomic.StoreUint32(&h.connected, 1)

	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL started")
	return nil
}

// Stop signals disconnection, closes every FIFO and removes the device
// directory.
func (h *HAL) Stop() error {
	h.mutex.RLock()
	if h.connection != nil {
		h.connection.Write([]byte{SigDisconnect})
	}
	h.mutex.RUnlock()

	atomic.StoreUint32(&h.connected, 0)
	h.closeOnce.Do(func() { close(h.closeCh) })

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.cleanup()
	h.initDone = false

	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL stopped")
	return nil
}

func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.hostToDevice, &h.deviceToHost, &h.connection} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	for i := range MaxEndpoints {
		if h.epIn[i] != nil {
			h.epIn[i].Close()
			h.epIn[i] = nil
		}
		if h.epOut[i] != nil {
			h.epOut[i].Close()
			h.epOut[i] = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// ReadSetup reads the next SETUP message from the host. Any OUT data
// carried in the message becomes the data stage served by ReadEP0.
//
// Returns the context error if no message starts before ctx is done.
// Once the first byte of a message arrives the message is read in full.
func (h *HAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	h.mutex.RLock()
	f := h.hostToDevice
	h.mutex.RUnlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}

	for {
		msgType, payload, err := h.readMessage(ctx, f)
		if err != nil {
			return err
		}

		switch msgType {
		case MsgSetup:
			// Payload: [address, setup_packet(8), out_data...]
			if len(payload) < 1+hal.SetupPacketSize {
				return pkg.ErrSetupPacketTooShort
			}
			hal.ParseSetupPacket(payload[1:1+hal.SetupPacketSize], out)
			h.ep0OutLen = copy(h.ep0Out[:], payload[1+hal.SetupPacketSize:])
			h.ep0OutPos = 0

			pkg.LogDebug(pkg.ComponentHAL, "setup received",
				"reqType", out.RequestType,
				"req", out.Request,
				"value", out.Value,
				"index", out.Index,
				"length", out.Length,
				"outData", h.ep0OutLen)
			return nil

		case MsgReset:
			h.ep0OutLen, h.ep0OutPos = 0, 0
			h.AckEP0()
			pkg.LogDebug(pkg.ComponentHAL, "port reset received")
			return pkg.ErrReset

		case MsgAddress:
			if len(payload) >= 1 {
				h.mutex.Lock()
				h.address = payload[0]
				h.mutex.Unlock()
				pkg.LogDebug(pkg.ComponentHAL, "address set", "address", payload[0])
			}
			h.AckEP0()

		default:
			pkg.LogWarn(pkg.ComponentHAL, "unexpected message on EP0", "type", msgType)
		}
	}
}

// WriteEP0 sends the IN data stage as a single DATA message. An empty
// slice is sent as a zero-length DATA message.
func (h *HAL) WriteEP0(ctx context.Context, data []byte) error {
	h.mutex.RLock()
	f := h.deviceToHost
	h.mutex.RUnlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}
	return h.sendMessage(ctx, f, MsgData, data)
}

// ReadEP0 serves the OUT data stage stored by the last ReadSetup.
func (h *HAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := copy(buf, h.ep0Out[h.ep0OutPos:h.ep0OutLen])
	h.ep0OutPos += n
	return n, nil
}

// StallEP0 sends a STALL response.
func (h *HAL) StallEP0() error {
	h.mutex.RLock()
	f := h.deviceToHost
	h.mutex.RUnlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}
	pkg.LogDebug(pkg.ComponentHAL, "EP0 stalled")
	return h.sendMessage(context.Background(), f, MsgStall, nil)
}

// AckEP0 sends an ACK response.
func (h *HAL) AckEP0() error {
	h.mutex.RLock()
	f := h.deviceToHost
	h.mutex.RUnlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}
	return h.sendMessage(context.Background(), f, MsgAck, nil)
}

// Read reads a DATA message from an OUT endpoint. A payload larger than
// buf is delivered over successive calls.
func (h *HAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	f, err := h.endpoint(address, false)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, pkg.ErrBufferTooSmall
	}

	idx := address&0x0F - 1
	if pending := h.epOutPending[idx]; len(pending) > 0 {
		n := copy(buf, pending)
		h.epOutPending[idx] = pending[n:]
		return n, nil
	}

	msgType, payload, err := h.readMessage(ctx, f)
	if err != nil {
		return 0, err
	}
	if msgType != MsgData {
		return 0, pkg.ErrProtocol
	}
	n := copy(buf, payload)
	if n < len(payload) {
		h.epOutPending[idx] = append([]byte(nil), payload[n:]...)
	}
	return n, nil
}

// Write writes one DATA message to an IN endpoint.
func (h *HAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	f, err := h.endpoint(address, true)
	if err != nil {
		return 0, err
	}
	if len(data) > MaxPacketSize {
		data = data[:MaxPacketSize]
	}
	if err := h.sendMessage(ctx, f, MsgData, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// IsConnected returns true between Start and Stop.
func (h *HAL) IsConnected() bool {
	return atomic.LoadUint32(&h.connected) == 1
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.deviceDir
}

// UUID returns the device's unique identifier.
func (h *HAL) UUID() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.id
}

func (h *HAL) endpoint(address uint8, in bool) (*os.File, error) {
	num := address & 0x0F
	if num == 0 || num > MaxEndpoints || (address&0x80 != 0) != in {
		return nil, pkg.ErrInvalidEndpoint
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	f := h.epOut[num-1]
	if in {
		f = h.epIn[num-1]
	}
	if f == nil {
		return nil, pkg.ErrNotConfigured
	}
	return f, nil
}

func (h *HAL) createFIFO(name string) error {
	path := filepath.Join(h.deviceDir, name)
	os.Remove(path)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

func (h *HAL) openFIFO(name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(h.deviceDir, name), os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// readMessage reads one framed message. The returned payload aliases the
// internal read buffer and is valid until the next read.
func (h *HAL) readMessage(ctx context.Context, f *os.File) (byte, []byte, error) {
	header := h.readBuf[:HeaderSize]
	if err := h.readFull(ctx, f, header); err != nil {
		return 0, nil, err
	}

	msgType := header[0]
	msgLen := int(binary.LittleEndian.Uint16(header[1:3]))

	body := h.readBuf[HeaderSize:]
	if msgLen > len(body) {
		// Drain the oversize payload to keep the stream framed.
		if _, err := io.CopyN(io.Discard, &deadlineReader{h: h, f: f}, int64(msgLen)); err != nil {
			return 0, nil, err
		}
		return 0, nil, pkg.ErrBufferTooSmall
	}
	payload := body[:msgLen]
	if err := h.readFull(context.Background(), f, payload); err != nil {
		return 0, nil, err
	}
	return msgType, payload, nil
}

// readFull reads exactly len(buf) bytes. The context is only consulted
// until the first byte arrives.
func (h *HAL) readFull(ctx context.Context, f *os.File, buf []byte) error {
	total := 0
	for total < len(buf) {
		if total == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		select {
		case <-h.closeCh:
			return pkg.ErrCancelled
		default:
		}

		deadline := time.Now().Add(readSlice)
		if d, ok := ctx.Deadline(); ok && total == 0 && d.Before(deadline) {
			deadline = d
		}
		f.SetReadDeadline(deadline)
		n, err := f.Read(buf[total:])
		total += n
		if err != nil && !os.IsTimeout(err) {
			return err
		}
	}
	return nil
}

type deadlineReader struct {
	h *HAL
	f *os.File
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	if err := r.h.readFull(context.Background(), r.f, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// sendMessage writes a message [type, len_lo, len_hi, data...].
func (h *HAL) sendMessage(ctx context.Context, f *os.File, msgType byte, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closeCh:
		return pkg.ErrCancelled
	default:
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	n := min(len(data), MaxPacketSize)
	buf := h.writeBuf[:HeaderSize+n]
	buf[0] = msgType
	binary.LittleEndian.PutUint16(buf[1:3], uint16(n))
	copy(buf[HeaderSize:], data[:n])

	for written := 0; written < len(buf); {
		m, err := f.Write(buf[written:])
		written += m
		if err != nil {
			return err
		}
	}
	return nil
}

// Compile-time interface check
var _ hal.DeviceHAL = (*HAL)(nil)
