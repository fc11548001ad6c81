package routing

import (
	"errors"
	"net/netip"
	"syscall"
	"testing"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/wesleywu/routesock/internal/codec/nl"
	"github.com/wesleywu/routesock/route"
)

func mustRoute(t *testing.T, s string) route.Route {
	t.Helper()
	r, err := route.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", s, err)
	}
	return r
}

func nlAck(errno syscall.Errno, seq uint32) []byte {
	data := make([]byte, 20)
	nlenc.PutInt32(data[0:4], -int32(errno))
	b, _ := netlink.Message{
		Header: netlink.Header{Length: 36, Type: netlink.Error, Sequence: seq},
		Data:   data,
	}.MarshalBinary()
	return b
}

func nlDone(seq uint32) []byte {
	b, _ := netlink.Message{
		Header: netlink.Header{Length: 20, Type: netlink.Done, Flags: netlink.Multi, Sequence: seq},
		Data:   make([]byte, 4),
	}.MarshalBinary()
	return b
}

// nlRoute builds a route frame with the given header flags.
func nlRoute(r route.Route, typ uint16, flags netlink.HeaderFlags) []byte {
	b, err := nl.EncodeAdd(r, 1, 0)
	if err != nil {
		panic(err)
	}
	nlenc.PutUint16(b[4:6], typ)
	nlenc.PutUint16(b[6:8], uint16(flags))
	return b
}

func nlEntry(r route.Route) []byte {
	return nlRoute(r, nl.RTM_NEWROUTE, netlink.Multi)
}

// nlKernel answers requests from an in-memory main table.
type nlKernel struct {
	routes []route.Route
}

func (k *nlKernel) find(r route.Route) int {
	for i, have := range k.routes {
		if have.Destination == r.Destination && have.Prefix == r.Prefix {
			return i
		}
	}
	return -1
}

func (k *nlKernel) respond(req []byte) [][]byte {
	frames, err := nl.ParseFrames(req)
	if err != nil || len(frames) != 1 {
		return [][]byte{nlAck(syscall.EINVAL, 0)}
	}
	f := frames[0]
	seq := f.Header.Sequence
	switch f.Header.Type {
	case nl.RTM_NEWROUTE:
		m, err := nl.DecodeRoute(f)
		if err != nil {
			return [][]byte{nlAck(syscall.EINVAL, seq)}
		}
		if k.find(m.Route) >= 0 {
			return [][]byte{nlAck(syscall.EEXIST, seq)}
		}
		k.routes = append(k.routes, m.Route)
		return [][]byte{nlAck(0, seq)}
	case nl.RTM_DELROUTE:
		m, err := nl.DecodeRoute(f)
		if err != nil {
			return [][]byte{nlAck(syscall.EINVAL, seq)}
		}
		i := k.find(m.Route)
		if i < 0 {
			return [][]byte{nlAck(syscall.ESRCH, seq)}
		}
		k.routes = append(k.routes[:i], k.routes[i+1:]...)
		return [][]byte{nlAck(0, seq)}
	case nl.RTM_GETROUTE:
		// One entry per datagram so the dump spans several reads.
		var out [][]byte
		for _, r := range k.routes {
			e := nlEntry(r)
			nlenc.PutUint32(e[8:12], seq)
			out = append(out, e)
		}
		return append(out, nlDone(seq))
	}
	return [][]byte{nlAck(syscall.EOPNOTSUPP, seq)}
}

func newFakeNetlink(k *nlKernel, opts ...Option) (*Netlink, *fakeConn) {
	c := &fakeConn{respond: k.respond}
	return NewNetlink(c, opts...), c
}

func TestNetlinkAddDeleteScenario(t *testing.T) {
	k := &nlKernel{}
	h, _ := newFakeNetlink(k)
	r := mustRoute(t, "10.0.0.0/8").WithGateway(netip.MustParseAddr("192.168.1.1"))

	if err := h.Add(r); err != nil {
		t.Fatalf("First add failed: %v", err)
	}
	if err := h.Add(r); !errors.Is(err, route.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists on second add, got %v", err)
	}
	if err := h.Delete(r); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := h.Delete(r); !errors.Is(err, route.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if err := h.Add(r); err != nil {
		t.Errorf("Add after delete failed: %v", err)
	}
	if len(k.routes) != 1 || k.routes[0] != r {
		t.Errorf("Expected table [%s], got %v", r, k.routes)
	}
}

func TestNetlinkGetLongestPrefix(t *testing.T) {
	k := &nlKernel{routes: []route.Route{
		mustRoute(t, "10.0.0.0/8"),
		mustRoute(t, "10.1.0.0/16"),
		mustRoute(t, "0.0.0.0/0"),
	}}
	h, _ := newFakeNetlink(k)

	got, err := h.Get(mustRoute(t, "10.1.2.3/32"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != mustRoute(t, "10.1.0.0/16") {
		t.Errorf("Expected 10.1.0.0/16, got %s", got)
	}
}

func TestNetlinkGetEmptyDump(t *testing.T) {
	c := &fakeConn{}
	c.queue(nlDone(1))
	h := NewNetlink(c)

	got, err := h.Get(mustRoute(t, "8.8.8.8/32"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != route.Default() {
		t.Errorf("Expected default route, got %s", got)
	}
}

func TestNetlinkGetSkipsForeignFrames(t *testing.T) {
	other := nlEntry(mustRoute(t, "10.1.2.0/24"))
	other[16+4] = 100 // rtm_table of a non-main table

	c := &fakeConn{}
	c.queue(
		concat(
			nlRoute(mustRoute(t, "10.1.2.3/32"), nl.RTM_NEWROUTE, 0), // notification, not part of the dump
			nlEntry(mustRoute(t, "10.0.0.0/8")),
			other,
			nlEntry(mustRoute(t, "2001:db8::/32")),
		),
		concat(nlEntry(mustRoute(t, "10.1.0.0/16")), nlDone(1)),
	)
	h := NewNetlink(c)

	got, err := h.Get(mustRoute(t, "10.1.2.3/32"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != mustRoute(t, "10.1.0.0/16") {
		t.Errorf("Expected 10.1.0.0/16, got %s", got)
	}
}

func TestNetlinkGetErrorFrame(t *testing.T) {
	c := &fakeConn{}
	c.queue(concat(nlEntry(mustRoute(t, "10.0.0.0/8")), nlAck(syscall.ENOBUFS, 1)))
	h := NewNetlink(c)

	if _, err := h.Get(mustRoute(t, "10.1.2.3/32")); !errors.Is(err, route.ErrOutOfMemory) {
		t.Errorf("Expected ErrOutOfMemory, got %v", err)
	}
}

func TestNetlinkTruncatedReply(t *testing.T) {
	c := &fakeConn{}
	full := nlAck(0, 1)
	c.queue(full[:10])
	h := NewNetlink(c)

	if err := h.Add(mustRoute(t, "10.0.0.0/8").WithIfIndex(1)); !errors.Is(err, route.ErrProtocol) {
		t.Errorf("Expected ErrProtocol, got %v", err)
	}
}

func TestNetlinkAckAfterNotifications(t *testing.T) {
	c := &fakeConn{}
	c.queue(
		nlRoute(mustRoute(t, "192.168.0.0/16"), nl.RTM_NEWROUTE, 0),
		concat(nlRoute(mustRoute(t, "192.168.0.0/16"), nl.RTM_DELROUTE, 0), nlAck(syscall.EEXIST, 1)),
	)
	h := NewNetlink(c)

	if err := h.Add(mustRoute(t, "10.0.0.0/8").WithIfIndex(1)); !errors.Is(err, route.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestNetlinkCommunicationErrors(t *testing.T) {
	c := &fakeConn{writeErr: syscall.EBADF}
	h := NewNetlink(c)
	if err := h.Add(mustRoute(t, "10.0.0.0/8").WithIfIndex(1)); !errors.Is(err, route.ErrCommunication) {
		t.Errorf("Expected ErrCommunication on write failure, got %v", err)
	}

	// No reply queued: the read fails.
	if err := h.Delete(mustRoute(t, "10.0.0.0/8")); !errors.Is(err, route.ErrCommunication) {
		t.Errorf("Expected ErrCommunication on read failure, got %v", err)
	}
}

func TestNetlinkMonitor(t *testing.T) {
	added := mustRoute(t, "10.9.0.0/16").WithGateway(netip.MustParseAddr("10.0.0.1"))
	c := &fakeConn{}
	c.queue(concat(
		nlRoute(added, nl.RTM_NEWROUTE, 0),
		nlRoute(added, nl.RTM_DELROUTE, 0),
		nlRoute(added, nl.RTM_NEWROUTE, netlink.Replace),
		nlDone(0),
	))
	obs := &fakeObserver{}
	h := NewNetlink(c, WithObserver(obs))
	buf := NewBuffer()

	want := []struct {
		kind  route.ChangeKind
		route route.Route
	}{
		{route.ChangeAdd, added},
		{route.ChangeDelete, added},
		{route.ChangeChange, added},
		{route.ChangeOther, route.Default()},
	}
	for i, w := range want {
		change, r, err := h.Monitor(buf)
		if err != nil {
			t.Fatalf("Monitor #%d failed: %v", i, err)
		}
		if change.Kind != w.kind {
			t.Errorf("Monitor #%d: expected %v, got %v", i, w.kind, change)
		}
		if r != w.route {
			t.Errorf("Monitor #%d: expected %s, got %s", i, w.route, r)
		}
	}
	if len(obs.events) != len(want) {
		t.Errorf("Expected %d observed events, got %d", len(want), len(obs.events))
	}
	if _, _, err := h.Monitor(buf); !errors.Is(err, route.ErrCommunication) {
		t.Errorf("Expected read failure once the queue is drained, got %v", err)
	}
}

func TestNetlinkSequence(t *testing.T) {
	k := &nlKernel{}
	h, c := newFakeNetlink(k)
	h.Add(mustRoute(t, "10.0.0.0/8").WithIfIndex(1))
	h.Delete(mustRoute(t, "10.0.0.0/8").WithIfIndex(1))
	for i, w := range c.written {
		if seq := nlenc.Uint32(w[8:12]); seq != 1 {
			t.Errorf("Request %d: expected fixed sequence 1, got %d", i, seq)
		}
	}

	h, c = newFakeNetlink(&nlKernel{}, WithSequence(100), WithMonotonicSequence(true))
	h.Add(mustRoute(t, "10.0.0.0/8").WithIfIndex(1))
	h.Add(mustRoute(t, "10.0.0.0/8").WithIfIndex(1))
	if a, b := nlenc.Uint32(c.written[0][8:12]), nlenc.Uint32(c.written[1][8:12]); a != 100 || b != 101 {
		t.Errorf("Expected sequences 100, 101, got %d, %d", a, b)
	}
}

func TestNetlinkMonotonicSkipsStaleReplies(t *testing.T) {
	k := &nlKernel{}
	h, c := newFakeNetlink(k, WithSequence(100), WithMonotonicSequence(true))
	r := mustRoute(t, "10.0.0.0/8").WithIfIndex(1)

	// A late EEXIST for an earlier request sits ahead of the real ack.
	c.queue(nlAck(syscall.EEXIST, 7))
	if err := h.Add(r); err != nil {
		t.Fatalf("Stale ack taken for the add reply: %v", err)
	}
	if len(k.routes) != 1 {
		t.Fatalf("Expected 1 route in table, got %d", len(k.routes))
	}

	// Leftovers of an earlier dump must not end this one.
	stale := nlEntry(mustRoute(t, "10.1.0.0/16"))
	nlenc.PutUint32(stale[8:12], 7)
	c.queue(concat(stale, nlAck(syscall.ENOBUFS, 7), nlDone(7)))
	got, err := h.Get(mustRoute(t, "10.1.2.3/32"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != r {
		t.Errorf("Expected %s, got %s", r, got)
	}

	// With a fixed sequence the first ack in line is the answer.
	h, c = newFakeNetlink(&nlKernel{})
	c.queue(nlAck(syscall.EEXIST, 7))
	if err := h.Add(r); !errors.Is(err, route.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists with a fixed sequence, got %v", err)
	}
}

func TestNetlinkObserverAndClose(t *testing.T) {
	obs := &fakeObserver{}
	h, c := newFakeNetlink(&nlKernel{}, WithObserver(obs))
	r := mustRoute(t, "10.0.0.0/8").WithIfIndex(1)
	h.Add(r)
	h.Add(r)

	if len(obs.ops) != 2 || obs.ops[0].action != "add" || obs.ops[0].err != nil || obs.ops[1].err == nil {
		t.Errorf("Unexpected observations %+v", obs.ops)
	}

	if err := h.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Second close should return nil, got %v", err)
	}
	if c.closed != 1 {
		t.Errorf("Expected the connection to be closed once, got %d", c.closed)
	}
}

func TestNetlinkInvalidRoute(t *testing.T) {
	h, c := newFakeNetlink(&nlKernel{})
	if err := h.Add(route.New(netip.MustParseAddr("10.0.0.0"), 33)); !errors.Is(err, route.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
	if len(c.written) != 0 {
		t.Error("Invalid routes must not reach the kernel")
	}
}

func TestNetlinkSubscribeUnsupported(t *testing.T) {
	h, _ := newFakeNetlink(&nlKernel{})
	if err := h.Subscribe(GroupIPv4Route); !errors.Is(err, route.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for a conn without subscriptions, got %v", err)
	}
}
