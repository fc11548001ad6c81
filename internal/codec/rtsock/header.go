package rtsock

import (
	"encoding/binary"

	"github.com/wesleywu/routesock/route"
)

// Header is the portion of struct rt_msghdr shared by every flavour.
//
//	msglen u16 @0, version u8 @2, type u8 @3, index u16 @4,
//	flags i32 @8, addrs i32 @12, pid i32 @16, seq i32 @20, errno i32 @24
type Header struct {
	MsgLen  uint16
	Version uint8
	Type    uint8
	Index   uint16
	Flags   int32
	Addrs   int32
	PID     int32
	Seq     int32
	Errno   int32
}

// Every routing socket message starts with msglen, version and type.
const commonHeaderLen = 4

var order = binary.NativeEndian

func (h Header) put(b []byte) {
	order.PutUint16(b[0:2], h.MsgLen)
	b[2] = h.Version
	b[3] = h.Type
	order.PutUint16(b[4:6], h.Index)
	order.PutUint32(b[8:12], uint32(h.Flags))
	order.PutUint32(b[12:16], uint32(h.Addrs))
	order.PutUint32(b[16:20], uint32(h.PID))
	order.PutUint32(b[20:24], uint32(h.Seq))
	order.PutUint32(b[24:28], uint32(h.Errno))
}

// IsRouteMessage reports whether t uses struct rt_msghdr. Interface and
// address messages carry differently shaped headers.
func IsRouteMessage(t uint8) bool {
	return t >= RTM_ADD && t <= RTM_RESOLVE
}

// ParseHeader validates the common prefix of b and, for route messages, reads
// the full rt_msghdr. Other message types only get MsgLen, Version and Type.
func (l Layout) ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < commonHeaderLen {
		return h, route.Protocolf("decode", "message too short: %d bytes", len(b))
	}
	h.MsgLen = order.Uint16(b[0:2])
	h.Version = b[2]
	h.Type = b[3]
	if h.Version != RTM_VERSION {
		return h, route.Protocolf("decode", "routing socket version %d, want %d", h.Version, RTM_VERSION)
	}
	if int(h.MsgLen) > len(b) {
		return h, route.Protocolf("decode", "msglen %d exceeds %d bytes read", h.MsgLen, len(b))
	}
	if int(h.MsgLen) < commonHeaderLen {
		return h, route.Protocolf("decode", "msglen %d below header size", h.MsgLen)
	}
	if !IsRouteMessage(h.Type) {
		return h, nil
	}
	if len(b) < l.HeaderLen || int(h.MsgLen) < l.HeaderLen {
		return h, route.Protocolf("decode", "%s: %d bytes, rt_msghdr needs %d", TypeString(h.Type), h.MsgLen, l.HeaderLen)
	}
	h.Index = order.Uint16(b[4:6])
	h.Flags = int32(order.Uint32(b[8:12]))
	h.Addrs = int32(order.Uint32(b[12:16]))
	h.PID = int32(order.Uint32(b[16:20]))
	h.Seq = int32(order.Uint32(b[20:24]))
	h.Errno = int32(order.Uint32(b[24:28]))
	return h, nil
}
