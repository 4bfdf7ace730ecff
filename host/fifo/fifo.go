package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/satlab/bluebox/device"
	"github.com/satlab/bluebox/device/hal"
	devfifo "github.com/satlab/bluebox/device/hal/fifo"
	"github.com/satlab/bluebox/pkg"
)

// DefaultTimeout bounds a transfer whose context has no deadline.
const DefaultTimeout = 5 * time.Second

// Directory polling interval used by Discover.
const pollInterval = 50 * time.Millisecond

// Maximum message size on the bus.
const maxMessageSize = devfifo.HeaderSize + 1 + hal.SetupPacketSize + devfifo.MaxPacketSize

// Transport talks to one simulated device through its FIFO directory.
type Transport struct {
	dir string

	hostToDevice *os.File
	deviceToHost *os.File

	// Data endpoint FIFOs indexed by endpoint number - 1.
	epIn  [devfifo.MaxEndpoints]*os.File
	epOut [devfifo.MaxEndpoints]*os.File

	mutex sync.Mutex
	txBuf [maxMessageSize]byte
	rxBuf [maxMessageSize]byte
}

// Discover waits until a device directory appears under busDir and
// returns its path. When several exist the most recently created one is
// chosen.
func Discover(ctx context.Context, busDir string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if dir, ok := newestDevice(busDir); ok {
			return dir, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", busDir, pkg.ErrNoDevice)
		case <-ticker.C:
		}
	}
}

func newestDevice(busDir string) (string, bool) {
	entries, err := os.ReadDir(busDir)
	if err != nil {
		return "", false
	}

	var (
		best    string
		bestMod time.Time
	)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), devfifo.DirPrefix) {
			continue
		}
		dir := filepath.Join(busDir, entry.Name())
		// The connection FIFO is created last.
		info, err := os.Stat(filepath.Join(dir, devfifo.FileConnection))
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = dir, info.ModTime()
		}
	}
	return best, best != ""
}

// Open discovers a device under busDir and opens it.
func Open(ctx context.Context, busDir string) (*Transport, error) {
	dir, err := Discover(ctx, busDir)
	if err != nil {
		return nil, err
	}
	return OpenDevice(dir)
}

// OpenDevice opens the FIFOs of the device directory dir.
func OpenDevice(dir string) (*Transport, error) {
	t := &Transport{dir: dir}

	var err error
	open := func(name string) *os.File {
		if err != nil {
			return nil
		}
		var f *os.File
		f, err = os.OpenFile(filepath.Join(dir, name), os.O_RDWR|unix.O_NONBLOCK, 0)
		if err != nil {
			err = fmt.Errorf("open %s: %w", name, err)
		}
		return f
	}
	t.hostToDevice = open(devfifo.FileHostToDevice)
	t.deviceToHost = open(devfifo.FileDeviceToHost)
	for i := uint8(1); i <= devfifo.MaxEndpoints; i++ {
		t.epIn[i-1] = open(devfifo.EndpointFile(0x80 | i))
		t.epOut[i-1] = open(devfifo.EndpointFile(i))
	}
	if err != nil {
		t.Close()
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentHost, "fifo device opened", "dir", dir)
	return t, nil
}

// Dir returns the device directory.
func (t *Transport) Dir() string {
	return t.dir
}

// Close closes every FIFO.
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, f := range []**os.File{&t.hostToDevice, &t.deviceToHost} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	for i := range devfifo.MaxEndpoints {
		if t.epIn[i] != nil {
			t.epIn[i].Close()
			t.epIn[i] = nil
		}
		if t.epOut[i] != nil {
			t.epOut[i].Close()
			t.epOut[i] = nil
		}
	}
	return nil
}

// Control performs a control transfer. For OUT requests data is sent with
// the SETUP message; for IN requests up to len(data) bytes of the reply are
// copied into data. A stalled request returns pkg.ErrStall.
func (t *Transport) Control(ctx context.Context, setup *device.SetupPacket, data []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.hostToDevice == nil {
		return 0, pkg.ErrNoDevice
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	isIn := setup.IsDeviceToHost()

	// Payload: address (1) + setup (8) + data for OUT transfers.
	payload := t.txBuf[devfifo.HeaderSize:]
	payload[0] = 0
	var raw hal.SetupPacket
	setup.ToHAL(&raw)
	raw.MarshalTo(payload[1 : 1+hal.SetupPacketSize])
	payloadLen := 1 + hal.SetupPacketSize
	if !isIn {
		if len(data) > devfifo.MaxPacketSize {
			return 0, pkg.ErrBufferTooSmall
		}
		payloadLen += copy(payload[payloadLen:], data)
	}
	if err := t.send(t.hostToDevice, devfifo.MsgSetup, payloadLen); err != nil {
		return 0, err
	}

	n := 0
	for {
		msgType, body, err := t.receive(ctx, t.deviceToHost)
		if err != nil {
			return 0, err
		}
		switch msgType {
		case devfifo.MsgData:
			if isIn {
				n = copy(data, body)
			}
		case devfifo.MsgAck:
			if !isIn {
				n = len(data)
			}
			return n, nil
		case devfifo.MsgStall:
			return 0, pkg.ErrStall
		default:
			return 0, fmt.Errorf("control reply 0x%02X: %w", msgType, pkg.ErrProtocol)
		}
	}
}

// Transfer moves one packet on a data endpoint. IN endpoints (bit 7 set)
// read into data; OUT endpoints send data.
func (t *Transport) Transfer(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	num := endpoint & 0x0F
	if num == 0 || num > devfifo.MaxEndpoints {
		return 0, pkg.ErrInvalidEndpoint
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if endpoint&0x80 != 0 {
		f := t.epIn[num-1]
		if f == nil {
			return 0, pkg.ErrNoDevice
		}
		msgType, body, err := t.receive(ctx, f)
		if err != nil {
			return 0, err
		}
		if msgType != devfifo.MsgData {
			return 0, pkg.ErrProtocol
		}
		return copy(data, body), nil
	}

	f := t.epOut[num-1]
	if f == nil {
		return 0, pkg.ErrNoDevice
	}
	if len(data) > devfifo.MaxPacketSize {
		return 0, pkg.ErrBufferTooSmall
	}
	n := copy(t.txBuf[devfifo.HeaderSize:], data)
	if err := t.send(f, devfifo.MsgData, n); err != nil {
		return 0, err
	}
	return n, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// send frames the n payload bytes already in txBuf and writes them.
func (t *Transport) send(f *os.File, msgType byte, n int) error {
	t.txBuf[0] = msgType
	binary.LittleEndian.PutUint16(t.txBuf[1:3], uint16(n))
	buf := t.txBuf[:devfifo.HeaderSize+n]
	for written := 0; written < len(buf); {
		m, err := f.Write(buf[written:])
		written += m
		if err != nil {
			return err
		}
	}
	return nil
}

// receive reads one framed message. The body aliases rxBuf.
func (t *Transport) receive(ctx context.Context, f *os.File) (byte, []byte, error) {
	header := t.rxBuf[:devfifo.HeaderSize]
	if err := readFull(ctx, f, header); err != nil {
		return 0, nil, err
	}
	n := int(binary.LittleEndian.Uint16(header[1:3]))
	if n > len(t.rxBuf)-devfifo.HeaderSize {
		return 0, nil, pkg.ErrBufferTooSmall
	}
	body := t.rxBuf[devfifo.HeaderSize : devfifo.HeaderSize+n]
	if err := readFull(ctx, f, body); err != nil {
		return 0, nil, err
	}
	return header[0], body, nil
}

func readFull(ctx context.Context, f *os.File, buf []byte) error {
	total := 0
	for total < len(buf) {
		deadline, _ := ctx.Deadline()
		f.SetReadDeadline(deadline)
		n, err := f.Read(buf[total:])
		total += n
		if err == nil {
			continue
		}
		if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
			return pkg.ErrTimeout
		}
		return err
	}
	return nil
}
