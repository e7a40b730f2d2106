package can

import (
	"encoding/binary"
	"syscall"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"can-log-analyzer/internal/models"
)

const (
	CAN_RAW        = 1
	SOL_CAN_RAW    = 101
	CAN_RAW_FILTER = 1

	// Linux CAN ID flag bits
	canEFFFlag = 0x80000000
	canRTRFlag = 0x40000000
	canERRFlag = 0x20000000
	canEFFMask = 0x1FFFFFFF
	canSFFMask = 0x7FF
)

// Reader handles reading from SocketCAN
type Reader struct {
	socket    int
	ifname    string
	frameChan chan models.Frame
	errorChan chan error
}

// NewReader creates a new CAN reader for the specified interface
func NewReader(ifname string) (*Reader, error) {
	socket, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CAN socket")
	}

	ifreq, err := unix.NewIfreq(ifname)
	if err != nil {
		unix.Close(socket)
		return nil, errors.Wrap(err, "failed to create ifreq")
	}

	err = unix.IoctlIfreq(socket, unix.SIOCGIFINDEX, ifreq)
	if err != nil {
		unix.Close(socket)
		return nil, errors.Wrapf(err, "failed to get index of %s", ifname)
	}

	addr := &unix.SockaddrCAN{
		Ifindex: int(ifreq.Uint32()),
	}

	err = unix.Bind(socket, addr)
	if err != nil {
		unix.Close(socket)
		return nil, errors.Wrap(err, "failed to bind socket")
	}

	return &Reader{
		socket:    socket,
		ifname:    ifname,
		frameChan: make(chan models.Frame, 1000),
		errorChan: make(chan error, 10),
	}, nil
}

// Start begins reading CAN frames
func (r *Reader) Start() {
	go r.readLoop()
}

// readLoop continuously reads CAN frames from the socket
func (r *Reader) readLoop() {
	buf := make([]byte, 16) // classic CAN frame is 16 bytes on the wire

	for {
		n, err := unix.Read(r.socket, buf)
		if err != nil {
			r.errorChan <- errors.Wrap(err, "read error")
			continue
		}

		if n < 16 {
			r.errorChan <- errors.Newf("incomplete CAN frame received: %d bytes", n)
			continue
		}

		rawID := binary.LittleEndian.Uint32(buf[0:4])
		dlc := buf[4]
		if dlc > 8 {
			dlc = 8
		}

		frame := models.Frame{
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
			Channel:   r.ifname,
			Extended:  rawID&canEFFFlag != 0,
			Remote:    rawID&canRTRFlag != 0,
			Error:     rawID&canERRFlag != 0,
			DLC:       dlc,
			Data:      append([]byte(nil), buf[8:8+dlc]...),
		}
		if frame.Extended {
			frame.ID = rawID & canEFFMask
		} else {
			frame.ID = rawID & canSFFMask
		}

		select {
		case r.frameChan <- frame:
		default:
			r.errorChan <- errors.New("frame channel full, dropping frame")
		}
	}
}

// Frames returns the channel for receiving CAN frames
func (r *Reader) Frames() <-chan models.Frame {
	return r.frameChan
}

// Errors returns the channel for receiving errors
func (r *Reader) Errors() <-chan error {
	return r.errorChan
}

// Close closes the CAN socket
func (r *Reader) Close() error {
	close(r.frameChan)
	close(r.errorChan)
	return unix.Close(r.socket)
}

// SetFilter sets CAN ID filters (optional)
func (r *Reader) SetFilter(filters []uint32) error {
	if len(filters) == 0 {
		return nil
	}

	// CAN filter structure: 8 bytes (4 for ID, 4 for mask)
	filterBuf := make([]byte, len(filters)*8)
	for i, id := range filters {
		offset := i * 8
		binary.LittleEndian.PutUint32(filterBuf[offset:], id)
		binary.LittleEndian.PutUint32(filterBuf[offset+4:], 0xFFFFFFFF) // exact match
	}

	_, _, errno := syscall.Syscall6(
		syscall.SYS_SETSOCKOPT,
		uintptr(r.socket),
		uintptr(SOL_CAN_RAW),
		uintptr(CAN_RAW_FILTER),
		uintptr(unsafe.Pointer(&filterBuf[0])),
		uintptr(len(filterBuf)),
		0,
	)

	if errno != 0 {
		return errors.Newf("failed to set filter: %v", errno)
	}

	return nil
}
