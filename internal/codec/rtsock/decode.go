package rtsock

import (
	"net/netip"
	"syscall"

	"github.com/wesleywu/routesock/route"
)

// Message is a decoded routing socket message.
type Message struct {
	Header Header
	Change route.RouteChange
	// Route is the default route for messages that do not describe an IP
	// route (interface and address notifications, non-IP destinations).
	Route route.Route
}

// Decode parses one message from b. A message whose rtm_errno is set decodes
// its header and returns the classified kernel error.
func (l Layout) Decode(b []byte) (Message, error) {
	h, err := l.ParseHeader(b)
	if err != nil {
		return Message{}, err
	}
	m := Message{Header: h, Change: route.ChangeFromCode(h.Type), Route: route.Default()}
	if !IsRouteMessage(h.Type) {
		return m, nil
	}
	if h.Errno != 0 {
		return m, route.FromErrno(opFor(h.Type), syscall.Errno(h.Errno))
	}

	var (
		dst, gw     netip.Addr
		dstOK, gwOK bool
		mask        []byte
		haveMask    bool
		ifindex     uint32
		haveIfindex bool
	)
	c := cursor{b: b, off: l.HeaderLen, end: int(h.MsgLen)}
	for i := 0; i < rtaxMax; i++ {
		if h.Addrs&(1<<i) == 0 {
			continue
		}
		sa, err := c.next(l)
		if err != nil {
			return m, err
		}
		switch 1 << i {
		case RTA_DST:
			if dst, dstOK, err = l.parseIP(sa); err != nil {
				return m, err
			}
		case RTA_GATEWAY:
			if idx, ok := parseLink(sa); ok {
				ifindex, haveIfindex = idx, true
				continue
			}
			if gw, gwOK, err = l.parseIP(sa); err != nil {
				return m, err
			}
		case RTA_NETMASK:
			mask, haveMask = sa, true
		case RTA_IFP:
			if idx, ok := parseLink(sa); ok && idx != 0 {
				ifindex, haveIfindex = idx, true
			}
		}
	}
	if !dstOK {
		return m, nil
	}

	fam := route.FamilyOf(dst)
	r := route.New(dst, uint8(fam.Bits()))
	if haveMask && h.Flags&RTF_HOST == 0 {
		r.Prefix = l.parseMask(mask, fam)
	}
	if gwOK && route.FamilyOf(gw) == fam {
		r.Gateway = gw
	}
	if haveIfindex {
		r.IfIndex = ifindex
	} else {
		r.IfIndex = uint32(h.Index)
	}
	m.Route = r
	return m, nil
}

func opFor(t uint8) string {
	switch t {
	case RTM_ADD:
		return "add"
	case RTM_DELETE:
		return "delete"
	case RTM_GET:
		return "get"
	default:
		return "monitor"
	}
}
