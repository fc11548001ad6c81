package rtsock

import (
	"net/netip"
	"testing"

	xroute "golang.org/x/net/route"
	"golang.org/x/sys/unix"
)

func TestLayoutMatchesHost(t *testing.T) {
	if Host.HeaderLen != unix.SizeofRtMsghdr {
		t.Errorf("Expected header length %d, got %d", unix.SizeofRtMsghdr, Host.HeaderLen)
	}
	if Host.Inet6Family != unix.AF_INET6 {
		t.Errorf("Expected AF_INET6 %d, got %d", unix.AF_INET6, Host.Inet6Family)
	}
	if Host.LinkAddrLen != unix.SizeofSockaddrDatalink {
		t.Errorf("Expected sockaddr_dl length %d, got %d", unix.SizeofSockaddrDatalink, Host.LinkAddrLen)
	}
}

func TestEncodeParsesWithXNetRoute(t *testing.T) {
	r := mustRoute(t, "10.20.0.0/16").WithGateway(netip.MustParseAddr("192.168.0.1"))
	b, err := Host.EncodeAdd(r, 7, 0)
	if err != nil {
		t.Fatalf("EncodeAdd failed: %v", err)
	}
	msgs, err := xroute.ParseRIB(xroute.RIBTypeRoute, b)
	if err != nil {
		t.Fatalf("ParseRIB failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	rm, ok := msgs[0].(*xroute.RouteMessage)
	if !ok {
		t.Fatalf("Expected *RouteMessage, got %T", msgs[0])
	}
	if rm.Type != RTM_ADD || rm.Seq != 7 {
		t.Errorf("Unexpected header: type %d seq %d", rm.Type, rm.Seq)
	}
	dst, ok := rm.Addrs[unix.RTAX_DST].(*xroute.Inet4Addr)
	if !ok || dst.IP != [4]byte{10, 20, 0, 0} {
		t.Errorf("Unexpected destination %#v", rm.Addrs[unix.RTAX_DST])
	}
	gw, ok := rm.Addrs[unix.RTAX_GATEWAY].(*xroute.Inet4Addr)
	if !ok || gw.IP != [4]byte{192, 168, 0, 1} {
		t.Errorf("Unexpected gateway %#v", rm.Addrs[unix.RTAX_GATEWAY])
	}
	mask, ok := rm.Addrs[unix.RTAX_NETMASK].(*xroute.Inet4Addr)
	if !ok || mask.IP != [4]byte{255, 255, 0, 0} {
		t.Errorf("Unexpected netmask %#v", rm.Addrs[unix.RTAX_NETMASK])
	}
}

func TestDecodeXNetRouteMessage(t *testing.T) {
	rm := &xroute.RouteMessage{
		Version: RTM_VERSION,
		Type:    RTM_ADD,
		Flags:   RTF_UP | RTF_GATEWAY | RTF_STATIC,
		Seq:     3,
		Addrs: []xroute.Addr{
			unix.RTAX_DST:     &xroute.Inet6Addr{IP: netip.MustParseAddr("2001:db8::").As16()},
			unix.RTAX_GATEWAY: &xroute.Inet6Addr{IP: netip.MustParseAddr("2001:db8:ffff::1").As16()},
			unix.RTAX_NETMASK: &xroute.Inet6Addr{IP: netip.MustParseAddr("ffff:ffff::").As16()},
		},
	}
	b, err := rm.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	m, err := Host.Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := mustRoute(t, "2001:db8::/32").WithGateway(netip.MustParseAddr("2001:db8:ffff::1"))
	if m.Route != want {
		t.Errorf("Expected %s, got %s", want, m.Route)
	}
}
