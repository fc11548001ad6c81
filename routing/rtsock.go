package routing

import (
	"errors"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/wesleywu/routesock/internal/codec/rtsock"
	"github.com/wesleywu/routesock/route"
)

// RoutingSocket is the PF_ROUTE engine for one BSD flavour.
type RoutingSocket struct {
	engine
	layout rtsock.Layout
	pid    int32
}

// Every routing socket on the host sees every echo, and all handles of this
// process share its pid. Each handle therefore numbers its requests in its
// own block of seqStride sequence numbers, starting from the configured one.
const seqStride = 1 << 16

var handleCount atomic.Uint32

// NewRoutingSocket creates a routing socket engine over conn using layout.
func NewRoutingSocket(conn Conn, layout rtsock.Layout, opts ...Option) *RoutingSocket {
	s := &RoutingSocket{layout: layout, pid: int32(os.Getpid())}
	s.engine.init(conn, newOptions(opts), "rtsock-"+layout.Name)
	s.seq += (handleCount.Add(1) - 1) * seqStride
	return s
}

// Add inserts r.
func (s *RoutingSocket) Add(r route.Route) error {
	return s.observe("add", r, func() error {
		seq := int32(s.nextSeq())
		b, err := s.layout.EncodeAdd(r, seq, s.pid)
		if err != nil {
			return err
		}
		_, err = s.transact("add", rtsock.RTM_ADD, seq, b)
		return err
	})
}

// Delete removes r.
func (s *RoutingSocket) Delete(r route.Route) error {
	return s.observe("delete", r, func() error {
		seq := int32(s.nextSeq())
		b, err := s.layout.EncodeDelete(r, seq, s.pid)
		if err != nil {
			return err
		}
		_, err = s.transact("delete", rtsock.RTM_DELETE, seq, b)
		return err
	})
}

// Get asks the kernel for its best match and checks it against filter. A
// lookup the kernel cannot satisfy yields the default route.
func (s *RoutingSocket) Get(filter route.Route) (route.Route, error) {
	var result route.Route
	err := s.observe("get", filter, func() error {
		seq := int32(s.nextSeq())
		b, err := s.layout.EncodeGet(filter, seq, s.pid)
		if err != nil {
			return err
		}
		m, err := s.transact("get", rtsock.RTM_GET, seq, b)
		if errors.Is(err, route.ErrNotFound) {
			result = route.Default()
			return nil
		}
		if err != nil {
			return err
		}
		result = route.Select(filter, []route.Route{m.Route})
		return nil
	})
	return result, err
}

// transact writes req and reads until the echo carrying our pid and seq.
func (s *RoutingSocket) transact(op string, want uint8, seq int32, req []byte) (rtsock.Message, error) {
	if _, err := s.conn.Write(req); err != nil {
		errno, kernel := kernelErrno(err)
		if !kernel {
			return rtsock.Message{}, route.Communication(op, err)
		}
		// The kernel echoes rejected requests too; consume the echo so it
		// is not mistaken for the reply to the next request.
		if errno != syscall.ENOBUFS {
			s.awaitEcho(op, seq)
		}
		return rtsock.Message{}, route.FromErrno(op, errno)
	}
	for {
		nr, err := s.read(op, s.buf)
		if err != nil {
			return rtsock.Message{}, err
		}
		h, err := s.layout.ParseHeader(s.buf[:nr])
		if err != nil {
			// someone else's message; ours always parses
			s.log.Debug("Skipping unparsable routing message", "op", op, "error", err)
			continue
		}
		if !rtsock.IsRouteMessage(h.Type) || h.PID != s.pid || h.Seq != seq {
			continue
		}
		if h.Type != want {
			return rtsock.Message{}, route.Unexpected(op, rtsock.TypeString(h.Type), rtsock.TypeString(want))
		}
		s.log.Frames(op, nr, 1)
		return s.layout.Decode(s.buf[:nr])
	}
}

func (s *RoutingSocket) awaitEcho(op string, seq int32) {
	for {
		nr, err := s.conn.Read(s.buf)
		if err != nil || nr == 0 {
			return
		}
		h, err := s.layout.ParseHeader(s.buf[:nr])
		if err != nil {
			continue
		}
		if rtsock.IsRouteMessage(h.Type) && h.PID == s.pid && h.Seq == seq {
			return
		}
	}
}

// kernelErrno reports whether a write failure is the routing socket's
// synchronous report of a kernel rejection.
func kernelErrno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return 0, false
	}
	switch errno {
	case syscall.EEXIST, syscall.ESRCH, syscall.ENOENT, syscall.ENOBUFS:
		return errno, true
	}
	return errno, false
}

// Monitor decodes the next message on the socket. Messages carrying an
// errno (another process's failed request) return the change together with
// the kernel error.
func (s *RoutingSocket) Monitor(buf []byte) (route.RouteChange, route.Route, error) {
	nr, err := s.read("monitor", buf)
	if err != nil {
		return route.RouteChange{}, route.Route{}, err
	}
	m, err := s.layout.Decode(buf[:nr])
	if err != nil {
		return m.Change, m.Route, err
	}
	s.event(m.Change, m.Route)
	return m.Change, m.Route, nil
}

var _ Handle = (*RoutingSocket)(nil)
