package rtsock

import (
	"net/netip"

	"github.com/wesleywu/routesock/route"
)

// sockaddrIP builds a sockaddr_in or sockaddr_in6.
func (l Layout) sockaddrIP(addr netip.Addr) []byte {
	if addr.Is4() {
		b := make([]byte, sizeofSockaddrInet)
		b[0] = sizeofSockaddrInet
		b[1] = AF_INET
		a := addr.As4()
		copy(b[4:8], a[:])
		return b
	}
	b := make([]byte, sizeofSockaddrInet6)
	b[0] = sizeofSockaddrInet6
	b[1] = l.Inet6Family
	a := addr.As16()
	copy(b[8:24], a[:])
	return b
}

// sockaddrMask builds the netmask sockaddr for fam/prefix.
func (l Layout) sockaddrMask(fam route.Family, prefix uint8) []byte {
	addr, _ := netip.AddrFromSlice(route.Netmask(fam, prefix))
	return l.sockaddrIP(addr)
}

// sockaddrLink builds a sockaddr_dl naming an interface index only.
func (l Layout) sockaddrLink(index uint32) []byte {
	b := make([]byte, l.LinkAddrLen)
	b[0] = byte(l.LinkAddrLen)
	b[1] = AF_LINK
	order.PutUint16(b[2:4], uint16(index))
	return b
}

// cursor walks the sockaddr area of one message.
type cursor struct {
	b   []byte
	off int
	end int
}

// next returns the sockaddr at the cursor and advances past its padding.
func (c *cursor) next(l Layout) ([]byte, error) {
	if c.off >= c.end {
		return nil, route.Protocolf("decode", "sockaddr at offset %d beyond msglen %d", c.off, c.end)
	}
	saLen := int(c.b[c.off])
	if c.off+saLen > c.end {
		return nil, route.Protocolf("decode", "sockaddr length %d at offset %d overruns msglen %d", saLen, c.off, c.end)
	}
	sa := c.b[c.off : c.off+saLen]
	// The last sockaddr may be unpadded.
	c.off = min(c.off+l.roundup(saLen), c.end)
	return sa, nil
}

// parseIP decodes a sockaddr_in / sockaddr_in6. ok is false for other
// families.
func (l Layout) parseIP(sa []byte) (addr netip.Addr, ok bool, err error) {
	if len(sa) < 2 {
		return addr, false, nil
	}
	switch sa[1] {
	case AF_INET:
		if len(sa) < 8 {
			return addr, false, route.Protocolf("decode", "sockaddr_in of %d bytes", len(sa))
		}
		return netip.AddrFrom4([4]byte(sa[4:8])), true, nil
	case l.Inet6Family:
		if len(sa) < 24 {
			return addr, false, route.Protocolf("decode", "sockaddr_in6 of %d bytes", len(sa))
		}
		a := [16]byte(sa[8:24])
		// KAME stores the scope id in bytes 2-3 of link-local addresses.
		if a[0] == 0xfe && a[1]&0xc0 == 0x80 || a[0] == 0xff && a[1]&0x0f <= 0x02 {
			a[2], a[3] = 0, 0
		}
		return netip.AddrFrom16(a), true, nil
	default:
		return addr, false, nil
	}
}

// parseMask decodes a netmask sockaddr against the destination's family.
// Kernel netmasks are often truncated after the last non-zero byte and may
// carry no family at all; missing bytes are zero.
func (l Layout) parseMask(sa []byte, fam route.Family) uint8 {
	width := fam.Bits() / 8
	off := 4
	if fam == route.FamilyIPv6 {
		off = 8
	}
	mask := make([]byte, width)
	if len(sa) > off {
		copy(mask, sa[off:min(len(sa), off+width)])
	}
	return route.PrefixFromMask(mask)
}

// parseLink returns the interface index of a sockaddr_dl.
func parseLink(sa []byte) (uint32, bool) {
	if len(sa) < 4 || sa[1] != AF_LINK {
		return 0, false
	}
	return uint32(order.Uint16(sa[2:4])), true
}
