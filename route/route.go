// Package route holds the protocol-independent model shared by every routing
// backend: the Route record, change classification, error taxonomy and the
// longest-prefix selection used when answering a lookup.
package route

import (
	"fmt"
	"net/netip"
)

// Family is the address family of a route, derived from its destination.
type Family uint8

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "inet"
	case FamilyIPv6:
		return "inet6"
	default:
		return "unspec"
	}
}

// Bits returns the address width of the family.
func (f Family) Bits() int {
	switch f {
	case FamilyIPv4:
		return 32
	case FamilyIPv6:
		return 128
	default:
		return 0
	}
}

// FamilyOf reports the family of addr. IPv4-mapped IPv6 addresses are IPv6.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case addr.Is4():
		return FamilyIPv4
	case addr.Is6():
		return FamilyIPv6
	default:
		return FamilyUnspec
	}
}

// Route is one routing table entry as the kernel reports or accepts it.
//
// The family is fixed by Destination. Gateway is absent when it is the zero
// netip.Addr; IfIndex is absent when zero.
type Route struct {
	Destination netip.Addr
	Prefix      uint8
	Gateway     netip.Addr
	IfIndex     uint32
}

// Default returns 0.0.0.0/0 without gateway or interface. It is also the
// answer of a lookup that matched nothing.
func Default() Route {
	return Route{Destination: netip.IPv4Unspecified()}
}

// New creates a route to dst/prefix.
func New(dst netip.Addr, prefix uint8) Route {
	return Route{Destination: dst, Prefix: prefix}
}

// Parse parses CIDR notation ("10.0.0.0/8") or a bare address, which is
// taken as a host route.
func Parse(s string) (Route, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return New(p.Addr(), uint8(p.Bits())), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Route{}, fmt.Errorf("parse route %q: %w", s, err)
	}
	return New(addr, uint8(addr.BitLen())), nil
}

// WithGateway returns a copy of r routed via gw.
func (r Route) WithGateway(gw netip.Addr) Route {
	r.Gateway = gw
	return r
}

// WithIfIndex returns a copy of r bound to the interface with index idx.
func (r Route) WithIfIndex(idx uint32) Route {
	r.IfIndex = idx
	return r
}

// WithInterface returns a copy of r bound to the named interface. Name
// lookups are cached for a short while.
func (r Route) WithInterface(name string) (Route, error) {
	idx, err := resolveInterface(name)
	if err != nil {
		return r, err
	}
	r.IfIndex = idx
	return r, nil
}

// Family returns the family of the destination address.
func (r Route) Family() Family {
	return FamilyOf(r.Destination)
}

// HasGateway reports whether a gateway is set.
func (r Route) HasGateway() bool {
	return r.Gateway.IsValid()
}

// HasInterface reports whether an output interface is set.
func (r Route) HasInterface() bool {
	return r.IfIndex != 0
}

// Validate checks the prefix against the family width and that the gateway,
// when present, shares the destination's family.
func (r Route) Validate() error {
	fam := r.Family()
	if fam == FamilyUnspec {
		return &Error{Kind: KindInvalid, Op: "validate", Cause: fmt.Errorf("destination %v is not an IP address", r.Destination)}
	}
	if int(r.Prefix) > fam.Bits() {
		return &Error{Kind: KindInvalid, Op: "validate", Cause: fmt.Errorf("prefix /%d exceeds %d bits", r.Prefix, fam.Bits())}
	}
	if r.HasGateway() && FamilyOf(r.Gateway) != fam {
		return &Error{Kind: KindInvalid, Op: "validate", Cause: fmt.Errorf("gateway %v is not %s", r.Gateway, fam)}
	}
	return nil
}

// Network returns the destination masked to the prefix.
func (r Route) Network() netip.Prefix {
	p, err := r.Destination.Prefix(int(r.Prefix))
	if err != nil {
		return netip.Prefix{}
	}
	return p
}

// Contains reports whether addr falls inside the route's network.
func (r Route) Contains(addr netip.Addr) bool {
	n := r.Network()
	return n.IsValid() && n.Contains(addr)
}

// Netmask returns the network mask of the route in the family's byte width.
func (r Route) Netmask() []byte {
	return Netmask(r.Family(), r.Prefix)
}

func (r Route) String() string {
	s := fmt.Sprintf("%s/%d", r.Destination, r.Prefix)
	if r.HasGateway() {
		s += " via " + r.Gateway.String()
	}
	if r.HasInterface() {
		s += fmt.Sprintf(" dev #%d", r.IfIndex)
	}
	return s
}

// Netmask builds a mask of prefix leading one bits for fam.
func Netmask(fam Family, prefix uint8) []byte {
	bits := fam.Bits()
	if bits == 0 {
		return nil
	}
	if int(prefix) > bits {
		prefix = uint8(bits)
	}
	mask := make([]byte, bits/8)
	for i := range mask {
		switch n := int(prefix) - i*8; {
		case n >= 8:
			mask[i] = 0xff
		case n > 0:
			mask[i] = ^byte(0xff >> n)
		}
	}
	return mask
}

// PrefixFromMask counts the leading one bits of mask. Bits after the first
// zero are ignored.
func PrefixFromMask(mask []byte) uint8 {
	var n uint8
	for _, b := range mask {
		if b == 0xff {
			n += 8
			continue
		}
		for b&0x80 != 0 {
			n++
			b <<= 1
		}
		break
	}
	return n
}
