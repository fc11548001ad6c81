// Package nl encodes route requests for rtnetlink and decodes the kernel's
// answers. It only shapes bytes; no socket is touched here, so the package
// builds and tests on every platform.
package nl

import (
	"fmt"

	"github.com/mdlayher/netlink/nlenc"
)

// RtMsg see: <linux/rtnetlink.h> struct rtmsg
type RtMsg struct {
	Family RtmFamily
	DstLen uint8
	SrcLen uint8
	Tos    uint8

	Table    RtmTable
	Protocol RtmProtocol
	Scope    RtmScope
	Type     RtmType

	Flags RtmFlag
}

type (
	RtmFamily   = uint8
	RtmTable    = uint8
	RtmProtocol = uint8
	RtmScope    = uint8
	RtmType     = uint8
	RtmFlag     = uint32
)

// RtMsg.Family, <linux/socket.h>
const (
	AF_UNSPEC = RtmFamily(0)
	AF_INET   = RtmFamily(2)  /* Internet IP Protocol */
	AF_INET6  = RtmFamily(10) /* IP version 6 */
	AF_MPLS   = RtmFamily(28) /* MPLS */
)

// RtMsg.Table
const (
	RT_TABLE_UNSPEC  = RtmTable(0)
	RT_TABLE_DEFAULT = RtmTable(253)
	RT_TABLE_MAIN    = RtmTable(254)
	RT_TABLE_LOCAL   = RtmTable(255)
)

// RtMsg.Protocol
const (
	RTPROT_UNSPEC = RtmProtocol(0)
	RTPROT_KERNEL = RtmProtocol(2) /* Route installed by kernel */
	RTPROT_BOOT   = RtmProtocol(3) /* Route installed during boot */
	RTPROT_STATIC = RtmProtocol(4) /* Route installed by administrator */
)

// RtMsg.Scope
const (
	RT_SCOPE_UNIVERSE = RtmScope(0)
	RT_SCOPE_SITE     = RtmScope(200)
	RT_SCOPE_LINK     = RtmScope(253)
	RT_SCOPE_HOST     = RtmScope(254)
	RT_SCOPE_NOWHERE  = RtmScope(255)
)

// RtMsg.Type
const (
	RTN_UNSPEC  = RtmType(0)
	RTN_UNICAST = RtmType(1) /* Gateway or direct route */
)

// Message types, <linux/rtnetlink.h>
const (
	RTM_NEWROUTE = 24
	RTM_DELROUTE = 25
	RTM_GETROUTE = 26
)

// Attribute types
const (
	RTA_UNSPEC   = uint16(0)
	RTA_DST      = uint16(1)
	RTA_SRC      = uint16(2)
	RTA_IIF      = uint16(3)
	RTA_OIF      = uint16(4)
	RTA_GATEWAY  = uint16(5)
	RTA_PRIORITY = uint16(6)
	RTA_PREFSRC  = uint16(7)
	RTA_TABLE    = uint16(15)
)

// Multicast groups for route notifications, <linux/rtnetlink.h> enum rtnetlink_groups
const (
	RTNLGRP_IPV4_ROUTE = 7
	RTNLGRP_IPV6_ROUTE = 11
	RTNLGRP_MPLS_ROUTE = 27
)

const (
	nlmsgHeaderLen = 16
	rtmsgLen       = 12
	nlmsgAlignTo   = 4
)

// #define NLMSG_ALIGN(len) ( ((len)+NLMSG_ALIGNTO-1) & ~(NLMSG_ALIGNTO-1) )
func nlmsgAlign(n int) int {
	return (n + nlmsgAlignTo - 1) &^ (nlmsgAlignTo - 1)
}

// MarshalBinary packs m into its 12-byte wire form.
func (m RtMsg) MarshalBinary() ([]byte, error) {
	b := make([]byte, rtmsgLen)
	b[0] = m.Family
	b[1] = m.DstLen
	b[2] = m.SrcLen
	b[3] = m.Tos
	b[4] = m.Table
	b[5] = m.Protocol
	b[6] = m.Scope
	b[7] = m.Type
	nlenc.PutUint32(b[8:12], m.Flags)
	return b, nil
}

// UnmarshalBinary reads the fixed rtmsg part of b.
func (m *RtMsg) UnmarshalBinary(b []byte) error {
	if len(b) < rtmsgLen {
		return fmt.Errorf("rtmsg needs %d bytes, got %d", rtmsgLen, len(b))
	}
	m.Family = b[0]
	m.DstLen = b[1]
	m.SrcLen = b[2]
	m.Tos = b[3]
	m.Table = b[4]
	m.Protocol = b[5]
	m.Scope = b[6]
	m.Type = b[7]
	m.Flags = nlenc.Uint32(b[8:12])
	return nil
}
