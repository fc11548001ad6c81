package nl

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/wesleywu/routesock/route"
)

// Request flag sets.
const (
	AddFlags    = netlink.Request | netlink.Acknowledge | netlink.Create | netlink.Excl
	DeleteFlags = netlink.Request | netlink.Acknowledge
	GetFlags    = netlink.Request | netlink.Dump
)

func familyOf(r route.Route) RtmFamily {
	switch r.Family() {
	case route.FamilyIPv4:
		return AF_INET
	case route.FamilyIPv6:
		return AF_INET6
	default:
		return AF_UNSPEC
	}
}

// EncodeAdd builds an RTM_NEWROUTE request inserting r into the main table.
func EncodeAdd(r route.Route, seq, pid uint32) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rtm := RtMsg{
		Family:   familyOf(r),
		DstLen:   r.Prefix,
		Table:    RT_TABLE_MAIN,
		Protocol: RTPROT_BOOT,
		Scope:    RT_SCOPE_UNIVERSE,
		Type:     RTN_UNICAST,
	}
	// Interface-only routes are on-link.
	if !r.HasGateway() && r.HasInterface() {
		rtm.Scope = RT_SCOPE_LINK
	}
	return encode(RTM_NEWROUTE, AddFlags, seq, pid, rtm, func(ae *netlink.AttributeEncoder) {
		ae.Bytes(RTA_DST, r.Destination.AsSlice())
		if r.HasGateway() {
			ae.Bytes(RTA_GATEWAY, r.Gateway.AsSlice())
		}
		if r.HasInterface() {
			ae.Uint32(RTA_OIF, r.IfIndex)
		}
	})
}

// EncodeDelete builds an RTM_DELROUTE request. Gateway and interface, when
// set, narrow which entry the kernel removes.
func EncodeDelete(r route.Route, seq, pid uint32) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rtm := RtMsg{
		Family: familyOf(r),
		DstLen: r.Prefix,
		Table:  RT_TABLE_MAIN,
		Scope:  RT_SCOPE_NOWHERE,
	}
	return encode(RTM_DELROUTE, DeleteFlags, seq, pid, rtm, func(ae *netlink.AttributeEncoder) {
		ae.Bytes(RTA_DST, r.Destination.AsSlice())
		if r.HasGateway() {
			ae.Bytes(RTA_GATEWAY, r.Gateway.AsSlice())
		}
		if r.HasInterface() {
			ae.Uint32(RTA_OIF, r.IfIndex)
		}
	})
}

// EncodeGet builds an RTM_GETROUTE dump request of the main table for the
// filter's family.
func EncodeGet(filter route.Route, seq, pid uint32) ([]byte, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	rtm := RtMsg{
		Family: familyOf(filter),
		Table:  RT_TABLE_MAIN,
	}
	return encode(RTM_GETROUTE, GetFlags, seq, pid, rtm, func(ae *netlink.AttributeEncoder) {
		ae.Uint32(RTA_TABLE, uint32(RT_TABLE_MAIN))
		if filter.HasInterface() {
			ae.Uint32(RTA_OIF, filter.IfIndex)
		}
	})
}

func encode(typ netlink.HeaderType, flags netlink.HeaderFlags, seq, pid uint32, rtm RtMsg, attrs func(*netlink.AttributeEncoder)) ([]byte, error) {
	ae := netlink.NewAttributeEncoder()
	attrs(ae)
	ab, err := ae.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	rb, _ := rtm.MarshalBinary()

	data := append(rb, ab...)
	msg := netlink.Message{
		Header: netlink.Header{
			Length:   uint32(nlmsgAlign(nlmsgHeaderLen + len(data))),
			Type:     typ,
			Flags:    flags,
			Sequence: seq,
			PID:      pid,
		},
		Data: data,
	}
	return msg.MarshalBinary()
}
