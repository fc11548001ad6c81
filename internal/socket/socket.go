//go:build linux || darwin || freebsd

// Package socket owns the raw kernel routing channel: a netlink socket on
// Linux, a PF_ROUTE socket on the BSDs. The descriptor is non-blocking and
// registered with the runtime poller, so Read and Write block the calling
// goroutine only and Close wakes any goroutine blocked in them.
package socket

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultBufferSize is large enough for one netlink dump datagram or one
// routing socket message.
const DefaultBufferSize = 32 << 10

// Socket is an open routing channel. It must not be copied.
type Socket struct {
	f    *os.File
	once sync.Once
}

func newSocket(fd int, name string) (*Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}
	return &Socket{f: os.NewFile(uintptr(fd), name)}, nil
}

// Read receives one datagram into b.
func (s *Socket) Read(b []byte) (int, error) {
	return s.f.Read(b)
}

// Write sends b as one datagram.
func (s *Socket) Write(b []byte) (int, error) {
	n, err := s.f.Write(b)
	if err == nil && n != len(b) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(b))
	}
	return n, err
}

// Close releases the descriptor. Only the first call has an effect; later
// calls return nil.
func (s *Socket) Close() error {
	var err error
	s.once.Do(func() {
		err = s.f.Close()
	})
	return err
}

// SetReadBuffer sets SO_RCVBUF.
func (s *Socket) SetReadBuffer(n int) error {
	return s.control(func(fd int) error {
		return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n))
	})
}

func (s *Socket) control(fn func(fd int) error) error {
	rc, err := s.f.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return err
	}
	return opErr
}
