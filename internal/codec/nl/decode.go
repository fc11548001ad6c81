package nl

import (
	"fmt"
	"math"
	"net/netip"
	"syscall"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/wesleywu/routesock/route"
)

// Frame is one netlink message inside a datagram. Data aliases the read
// buffer and is only valid until the next read.
type Frame struct {
	Header netlink.Header
	Data   []byte
}

// FrameKind is the broad category of a frame.
type FrameKind int

const (
	FrameOther FrameKind = iota
	FrameError
	FrameDone
	FrameRoute
)

// Kind classifies f by header type.
func (f Frame) Kind() FrameKind {
	switch f.Header.Type {
	case netlink.Error:
		return FrameError
	case netlink.Done:
		return FrameDone
	case RTM_NEWROUTE, RTM_DELROUTE:
		return FrameRoute
	default:
		return FrameOther
	}
}

// IsDumpEntry reports whether f is one entry of a multipart route dump.
func (f Frame) IsDumpEntry() bool {
	return f.Header.Type == RTM_NEWROUTE && f.Header.Flags&netlink.Multi != 0
}

// ParseFrames splits a datagram into frames. Each header is bounds-checked
// against the buffer before its payload is sliced.
func ParseFrames(b []byte) ([]Frame, error) {
	var frames []Frame
	for off := 0; off < len(b); {
		rest := b[off:]
		if len(rest) < nlmsgHeaderLen {
			return nil, route.Protocolf("decode", "truncated netlink header: %d bytes left", len(rest))
		}
		h := netlink.Header{
			Length:   nlenc.Uint32(rest[0:4]),
			Type:     netlink.HeaderType(nlenc.Uint16(rest[4:6])),
			Flags:    netlink.HeaderFlags(nlenc.Uint16(rest[6:8])),
			Sequence: nlenc.Uint32(rest[8:12]),
			PID:      nlenc.Uint32(rest[12:16]),
		}
		l := int(h.Length)
		if l < nlmsgHeaderLen || l > len(rest) {
			return nil, route.Protocolf("decode", "netlink length %d out of range (have %d bytes)", l, len(rest))
		}
		frames = append(frames, Frame{Header: h, Data: rest[nlmsgHeaderLen:l]})
		off += nlmsgAlign(l)
	}
	return frames, nil
}

// Errno returns the error code carried by an NLMSG_ERROR frame. Zero is an
// acknowledgement.
func (f Frame) Errno() (syscall.Errno, error) {
	if len(f.Data) < 4 {
		return 0, route.Protocolf("decode", "error frame too short: %d bytes", len(f.Data))
	}
	// The kernel sends a negated errno; anything positive is malformed.
	code := nlenc.Int32(f.Data[0:4])
	if code > 0 || code == math.MinInt32 {
		return 0, route.Protocolf("decode", "error code %d out of range", code)
	}
	return syscall.Errno(-code), nil
}

// Err converts an NLMSG_ERROR frame into nil (ack) or a classified error.
func (f Frame) Err(op string) error {
	errno, err := f.Errno()
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return route.FromErrno(op, errno)
}

// RouteMessage is a decoded RTM_NEWROUTE / RTM_DELROUTE frame.
type RouteMessage struct {
	RtMsg
	Table    uint32
	Priority uint32
	// IP is false for families other than inet/inet6; Route is then the
	// default route.
	IP    bool
	Route route.Route
}

// DecodeRoute decodes the rtmsg and attributes of a route frame.
func DecodeRoute(f Frame) (RouteMessage, error) {
	var m RouteMessage
	if err := m.RtMsg.UnmarshalBinary(f.Data); err != nil {
		return m, route.Protocolf("decode", "%v", err)
	}
	m.Table = uint32(m.RtMsg.Table)

	var width int
	var unspec netip.Addr
	switch m.Family {
	case AF_INET:
		width, unspec = 4, netip.IPv4Unspecified()
	case AF_INET6:
		width, unspec = 16, netip.IPv6Unspecified()
	default:
		m.Route = route.Default()
		return m, nil
	}
	m.IP = true
	if int(m.DstLen) > width*8 {
		return m, route.Protocolf("decode", "dst_len %d exceeds family width", m.DstLen)
	}
	m.Route = route.New(unspec, m.DstLen)

	if len(f.Data) == rtmsgLen {
		return m, nil
	}
	ad, err := netlink.NewAttributeDecoder(f.Data[nlmsgAlign(rtmsgLen):])
	if err != nil {
		return m, route.Protocolf("decode", "attributes: %v", err)
	}
	for ad.Next() {
		switch ad.Type() {
		case RTA_DST:
			addr, err := addrAttr(ad.Bytes(), width, "RTA_DST")
			if err != nil {
				return m, err
			}
			m.Route.Destination = addr
		case RTA_GATEWAY:
			addr, err := addrAttr(ad.Bytes(), width, "RTA_GATEWAY")
			if err != nil {
				return m, err
			}
			m.Route.Gateway = addr
		case RTA_OIF:
			m.Route.IfIndex = ad.Uint32()
		case RTA_TABLE:
			m.Table = ad.Uint32()
		case RTA_PRIORITY:
			m.Priority = ad.Uint32()
		}
	}
	if err := ad.Err(); err != nil {
		return m, route.Protocolf("decode", "attributes: %v", err)
	}
	return m, nil
}

func addrAttr(b []byte, width int, name string) (netip.Addr, error) {
	if len(b) != width {
		return netip.Addr{}, route.Protocolf("decode", "%s is %d bytes, want %d", name, len(b), width)
	}
	addr, _ := netip.AddrFromSlice(b)
	return addr, nil
}

// Classify maps a notification header to a change kind.
func Classify(h netlink.Header) route.RouteChange {
	switch h.Type {
	case RTM_NEWROUTE:
		if h.Flags&netlink.Replace != 0 {
			return route.RouteChange{Kind: route.ChangeChange, Code: uint16(h.Type)}
		}
		return route.RouteChange{Kind: route.ChangeAdd, Code: uint16(h.Type)}
	case RTM_DELROUTE:
		return route.RouteChange{Kind: route.ChangeDelete, Code: uint16(h.Type)}
	default:
		return route.Other(uint16(h.Type))
	}
}

// TypeString names a header type for error messages.
func TypeString(t netlink.HeaderType) string {
	switch t {
	case RTM_NEWROUTE:
		return "RTM_NEWROUTE"
	case RTM_DELROUTE:
		return "RTM_DELROUTE"
	case RTM_GETROUTE:
		return "RTM_GETROUTE"
	default:
		return fmt.Sprintf("type %d", uint16(t))
	}
}
