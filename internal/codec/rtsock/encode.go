package rtsock

import (
	"github.com/wesleywu/routesock/route"
)

// request collects the sockaddr slots of one outgoing message, indexed by
// RTAX position.
type request struct {
	typ   uint8
	flags int32
	index uint16
	slots [rtaxMax][]byte
}

func (l Layout) marshal(req *request, seq, pid int32) []byte {
	n := l.HeaderLen
	var addrs int32
	for i, sa := range req.slots {
		if sa == nil {
			continue
		}
		addrs |= 1 << i
		n += l.roundup(len(sa))
	}

	b := make([]byte, n)
	Header{
		MsgLen:  uint16(n),
		Version: RTM_VERSION,
		Type:    req.typ,
		Index:   req.index,
		Flags:   req.flags,
		Addrs:   addrs,
		PID:     pid,
		Seq:     seq,
	}.put(b)

	off := l.HeaderLen
	for _, sa := range req.slots {
		if sa == nil {
			continue
		}
		copy(b[off:], sa)
		off += l.roundup(len(sa))
	}
	return b
}

func isHost(r route.Route) bool {
	return int(r.Prefix) == r.Family().Bits()
}

// EncodeAdd builds an RTM_ADD message for r.
func (l Layout) EncodeAdd(r route.Route, seq, pid int32) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	req := &request{typ: RTM_ADD, flags: RTF_UP | RTF_STATIC, index: uint16(r.IfIndex)}
	req.slots[0] = l.sockaddrIP(r.Destination)
	switch {
	case r.HasGateway():
		req.flags |= RTF_GATEWAY
		req.slots[1] = l.sockaddrIP(r.Gateway)
		if r.HasInterface() {
			req.slots[4] = l.sockaddrLink(r.IfIndex)
		}
	case r.HasInterface():
		// Interface routes name the link as their gateway.
		req.slots[1] = l.sockaddrLink(r.IfIndex)
	}
	if isHost(r) {
		req.flags |= RTF_HOST
	}
	req.slots[2] = l.sockaddrMask(r.Family(), r.Prefix)
	return l.marshal(req, seq, pid), nil
}

// EncodeDelete builds an RTM_DELETE message for r.
func (l Layout) EncodeDelete(r route.Route, seq, pid int32) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	req := &request{typ: RTM_DELETE, flags: RTF_UP | RTF_STATIC}
	req.slots[0] = l.sockaddrIP(r.Destination)
	if r.HasGateway() {
		req.flags |= RTF_GATEWAY
		req.slots[1] = l.sockaddrIP(r.Gateway)
	}
	if isHost(r) {
		req.flags |= RTF_HOST
	}
	req.slots[2] = l.sockaddrMask(r.Family(), r.Prefix)
	return l.marshal(req, seq, pid), nil
}

// EncodeGet builds an RTM_GET message. Host filters leave out the netmask so
// the kernel performs its own best-match lookup; an empty sockaddr_dl in the
// IFP slot asks the kernel to report the outgoing interface.
func (l Layout) EncodeGet(filter route.Route, seq, pid int32) ([]byte, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	req := &request{typ: RTM_GET, flags: RTF_UP | RTF_STATIC | RTF_GATEWAY}
	req.slots[0] = l.sockaddrIP(filter.Destination)
	if !isHost(filter) {
		req.slots[2] = l.sockaddrMask(filter.Family(), filter.Prefix)
	}
	req.slots[4] = l.sockaddrLink(0)
	return l.marshal(req, seq, pid), nil
}
