package routing

import (
	"io"
	"time"

	"github.com/wesleywu/routesock/route"
)

// fakeConn is an in-memory kernel channel. Each Write may queue replies
// through respond; Read hands out one queued datagram per call and reports
// io.EOF once the queue is empty so a broken engine fails instead of hanging.
type fakeConn struct {
	written  [][]byte
	replies  [][]byte
	respond  func(req []byte) [][]byte
	writeErr error
	closed   int
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.written = append(c.written, append([]byte(nil), b...))
	if c.respond != nil {
		c.replies = append(c.replies, c.respond(b)...)
	}
	if c.writeErr != nil {
		err := c.writeErr
		c.writeErr = nil
		return 0, err
	}
	return len(b), nil
}

func (c *fakeConn) Read(b []byte) (int, error) {
	if len(c.replies) == 0 {
		return 0, io.EOF
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return copy(b, next), nil
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func (c *fakeConn) queue(datagrams ...[]byte) {
	c.replies = append(c.replies, datagrams...)
}

type observed struct {
	action string
	err    error
}

type fakeObserver struct {
	ops    []observed
	events []route.RouteChange
}

func (o *fakeObserver) ObserveOperation(action string, _ time.Duration, err error) {
	o.ops = append(o.ops, observed{action: action, err: err})
}

func (o *fakeObserver) ObserveEvent(change route.RouteChange) {
	o.events = append(o.events, change)
}

func concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}
