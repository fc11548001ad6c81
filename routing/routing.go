// Package routing talks to the kernel routing table through its native
// channel: rtnetlink on Linux, the PF_ROUTE routing socket on macOS and
// FreeBSD.
//
// A Handle serves one request at a time. Calls block until the kernel has
// answered and there are no timeouts; Close from another goroutine aborts a
// blocked call. Use one Handle per goroutine.
package routing

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/wesleywu/routesock/internal/logger"
	"github.com/wesleywu/routesock/route"
)

// DefaultBufferSize is the buffer size NewBuffer allocates.
const DefaultBufferSize = 32 << 10

// Handle performs route actions against the kernel table.
type Handle interface {
	// Add inserts r. An existing identical entry fails with
	// route.ErrAlreadyExists.
	Add(r route.Route) error
	// Delete removes r. A missing entry fails with route.ErrNotFound.
	Delete(r route.Route) error
	// Get returns the most specific route covering filter, or
	// route.Default() if nothing matches.
	Get(filter route.Route) (route.Route, error)
	// Monitor blocks until the next routing message and classifies it. buf
	// receives the raw datagram and should be DefaultBufferSize long.
	Monitor(buf []byte) (route.RouteChange, route.Route, error)
	// Close releases the socket. Later calls return nil.
	Close() error
}

// Group is an rtnetlink multicast group carrying route notifications.
type Group uint32

const (
	GroupIPv4Route Group = 7
	GroupIPv6Route Group = 11
	GroupMPLSRoute Group = 27
)

func (g Group) String() string {
	switch g {
	case GroupIPv4Route:
		return "ipv4-route"
	case GroupIPv6Route:
		return "ipv6-route"
	case GroupMPLSRoute:
		return "mpls-route"
	default:
		return "group-" + strconv.FormatUint(uint64(g), 10)
	}
}

// ParseGroup maps a group name as printed by String back to its Group.
func ParseGroup(name string) (Group, error) {
	for _, g := range []Group{GroupIPv4Route, GroupIPv6Route, GroupMPLSRoute} {
		if g.String() == name {
			return g, nil
		}
	}
	return 0, &route.Error{Kind: route.KindInvalid, Op: "group", Cause: fmt.Errorf("unknown group %q", name)}
}

// Subscriber is implemented by handles whose channel needs an explicit
// subscription before Monitor sees notifications (netlink). Routing sockets
// receive every message without one.
type Subscriber interface {
	Subscribe(groups ...Group) error
}

// Conn is the transport a protocol engine runs over: one datagram per Read
// and Write.
type Conn interface {
	io.ReadWriteCloser
}

// Observer receives the outcome of every action and monitored event.
type Observer interface {
	ObserveOperation(action string, d time.Duration, err error)
	ObserveEvent(change route.RouteChange)
}

// NewBuffer allocates a buffer for Monitor.
func NewBuffer() []byte {
	return make([]byte, DefaultBufferSize)
}

// Option configures a Handle.
type Option func(*options)

type options struct {
	log          *logger.Logger
	observer     Observer
	socketBuffer int
	bufferSize   int
	sequence     uint32
	monotonic    bool
	groups       []Group
}

func newOptions(opts []Option) options {
	o := options{
		log:        logger.Nop(),
		bufferSize: DefaultBufferSize,
		sequence:   1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger logs transactions to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = logger.From(l) }
}

// WithObserver reports every action and event to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithSocketBuffer sets the kernel receive buffer (SO_RCVBUF) at Open.
func WithSocketBuffer(n int) Option {
	return func(o *options) { o.socketBuffer = n }
}

// WithBufferSize sets the size of the internal reply buffer.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithSequence sets the sequence number stamped on requests. It stays
// fixed unless WithMonotonicSequence is enabled. Routing socket handles
// after the first in a process start a block higher, since they all see
// each other's echoes.
func WithSequence(seq uint32) Option {
	return func(o *options) { o.sequence = seq }
}

// WithMonotonicSequence numbers requests seq, seq+1, ... and only accepts
// replies carrying the number just sent, so a late reply to an earlier
// request is never taken for the current one.
func WithMonotonicSequence(enabled bool) Option {
	return func(o *options) { o.monotonic = enabled }
}

// WithGroups subscribes a netlink handle to groups at Open. Ignored on
// routing sockets.
func WithGroups(groups ...Group) Option {
	return func(o *options) { o.groups = append(o.groups, groups...) }
}

// engine holds what both protocol engines share.
type engine struct {
	conn Conn
	opts options
	log  *logger.Logger
	buf  []byte
	seq  uint32

	closeOnce sync.Once
}

func (e *engine) init(conn Conn, o options, proto string) {
	e.conn = conn
	e.opts = o
	e.log = o.log.WithComponent("routing").WithFields("proto", proto)
	e.buf = make([]byte, o.bufferSize)
	e.seq = o.sequence
}

func (e *engine) nextSeq() uint32 {
	seq := e.seq
	if e.opts.monotonic {
		e.seq++
	}
	return seq
}

func (e *engine) write(op string, b []byte) error {
	if _, err := e.conn.Write(b); err != nil {
		return route.Communication(op, err)
	}
	return nil
}

func (e *engine) read(op string, b []byte) (int, error) {
	n, err := e.conn.Read(b)
	if err != nil {
		return 0, route.Communication(op, err)
	}
	if n == 0 {
		return 0, route.Protocolf(op, "empty read")
	}
	return n, nil
}

// observe times fn and reports it to the logger and observer.
func (e *engine) observe(op string, r route.Route, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	e.log.RouteOperation(op, r.String(), d.Microseconds(), err)
	if e.opts.observer != nil {
		e.opts.observer.ObserveOperation(op, d, err)
	}
	return err
}

func (e *engine) event(change route.RouteChange, r route.Route) {
	e.log.Debug("Route message", "change", change.String(), "route", r.String())
	if e.opts.observer != nil {
		e.opts.observer.ObserveEvent(change)
	}
}

func (e *engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if cerr := e.conn.Close(); cerr != nil {
			err = route.Communication("close", cerr)
		}
	})
	return err
}
