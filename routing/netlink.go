package routing

import (
	"strings"

	"github.com/wesleywu/routesock/internal/codec/nl"
	"github.com/wesleywu/routesock/route"
)

// Netlink is the rtnetlink engine. It only needs a Conn, so it can run over
// any transport that delivers netlink datagrams.
type Netlink struct {
	engine
	pid uint32

	// frames of the last monitored datagram not yet returned, decoded from
	// pendingBuf
	pending    []nl.Frame
	pendingBuf []byte
}

// NewNetlink creates a netlink engine over conn.
func NewNetlink(conn Conn, opts ...Option) *Netlink {
	n := &Netlink{}
	n.engine.init(conn, newOptions(opts), "netlink")
	return n
}

// Add inserts r into the main table.
func (n *Netlink) Add(r route.Route) error {
	return n.observe("add", r, func() error {
		seq := n.nextSeq()
		b, err := nl.EncodeAdd(r, seq, n.pid)
		if err != nil {
			return err
		}
		return n.transact("add", seq, b)
	})
}

// Delete removes r from the main table.
func (n *Netlink) Delete(r route.Route) error {
	return n.observe("delete", r, func() error {
		seq := n.nextSeq()
		b, err := nl.EncodeDelete(r, seq, n.pid)
		if err != nil {
			return err
		}
		return n.transact("delete", seq, b)
	})
}

// transact sends one acknowledged request and waits for its NLMSG_ERROR.
// Notifications that arrive in between are skipped, and so are replies to
// other requests when sequence numbers are monotonic.
func (n *Netlink) transact(op string, seq uint32, req []byte) error {
	if err := n.write(op, req); err != nil {
		return err
	}
	for {
		nr, err := n.read(op, n.buf)
		if err != nil {
			return err
		}
		frames, err := nl.ParseFrames(n.buf[:nr])
		if err != nil {
			return err
		}
		n.log.Frames(op, nr, len(frames))
		for _, f := range frames {
			if f.Kind() == nl.FrameError && n.answers(f, seq) {
				return f.Err(op)
			}
		}
	}
}

// Get dumps the main table of the filter's family and selects the most
// specific entry covering the filter. Multipart replies are read across
// datagrams until NLMSG_DONE.
func (n *Netlink) Get(filter route.Route) (route.Route, error) {
	var result route.Route
	err := n.observe("get", filter, func() error {
		seq := n.nextSeq()
		b, err := nl.EncodeGet(filter, seq, n.pid)
		if err != nil {
			return err
		}
		result, err = n.dump(filter, seq, b)
		return err
	})
	return result, err
}

func (n *Netlink) dump(filter route.Route, seq uint32, req []byte) (route.Route, error) {
	if err := n.write("get", req); err != nil {
		return route.Route{}, err
	}
	var sel route.Selector
	sel.Reset(filter)
	for {
		nr, err := n.read("get", n.buf)
		if err != nil {
			return route.Route{}, err
		}
		frames, err := nl.ParseFrames(n.buf[:nr])
		if err != nil {
			return route.Route{}, err
		}
		n.log.Frames("get", nr, len(frames))
		for _, f := range frames {
			if !n.answers(f, seq) {
				continue
			}
			switch f.Kind() {
			case nl.FrameDone:
				return sel.Result(), nil
			case nl.FrameError:
				if err := f.Err("get"); err != nil {
					return route.Route{}, err
				}
			case nl.FrameRoute:
				if !f.IsDumpEntry() {
					continue
				}
				m, err := nl.DecodeRoute(f)
				if err != nil {
					return route.Route{}, err
				}
				if !m.IP || m.Table != uint32(nl.RT_TABLE_MAIN) {
					continue
				}
				sel.Offer(m.Route)
			}
		}
	}
}

// answers reports whether f belongs to the request stamped seq. With a fixed
// sequence every request carries the same number, so only monotonic
// numbering can tell replies apart.
func (n *Netlink) answers(f nl.Frame, seq uint32) bool {
	return !n.opts.monotonic || f.Header.Sequence == seq
}

// Monitor returns the next frame received on the socket. A datagram holding
// several frames is returned one frame per call.
func (n *Netlink) Monitor(buf []byte) (route.RouteChange, route.Route, error) {
	if len(n.pending) == 0 {
		nr, err := n.read("monitor", buf)
		if err != nil {
			return route.RouteChange{}, route.Route{}, err
		}
		n.pendingBuf = append(n.pendingBuf[:0], buf[:nr]...)
		frames, err := nl.ParseFrames(n.pendingBuf)
		if err != nil {
			return route.RouteChange{}, route.Route{}, err
		}
		n.pending = frames
	}
	f := n.pending[0]
	n.pending = n.pending[1:]

	change := nl.Classify(f.Header)
	r := route.Default()
	if f.Kind() == nl.FrameRoute {
		m, err := nl.DecodeRoute(f)
		if err != nil {
			return change, route.Route{}, err
		}
		r = m.Route
	}
	n.event(change, r)
	return change, r, nil
}

// Subscribe joins rtnetlink multicast groups so Monitor sees route changes.
func (n *Netlink) Subscribe(groups ...Group) error {
	s, ok := n.conn.(interface{ Subscribe(...uint32) error })
	if !ok {
		return &route.Error{Kind: route.KindUnsupported, Op: "subscribe"}
	}
	ids := make([]uint32, len(groups))
	for i, g := range groups {
		ids[i] = uint32(g)
	}
	if err := s.Subscribe(ids...); err != nil {
		return route.Communication("subscribe", err)
	}
	n.log.MonitorStart(groupNames(groups))
	return nil
}

func groupNames(groups []Group) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.String()
	}
	return strings.Join(names, ",")
}

var (
	_ Handle     = (*Netlink)(nil)
	_ Subscriber = (*Netlink)(nil)
)
