// Package rtsock encodes and decodes PF_ROUTE routing socket messages: a
// fixed rt_msghdr followed by the sockaddrs named in its address bitmask.
//
// Byte offsets are explicit and the per-OS differences live in a Layout, so
// both flavours are encoded and tested on any platform.
package rtsock

import "strconv"

// Layout describes the parts of the routing socket ABI that differ between
// BSD flavours.
type Layout struct {
	Name string
	// HeaderLen is sizeof(struct rt_msghdr).
	HeaderLen int
	// WordAlign is the sockaddr padding unit used by ROUNDUP / SA_SIZE.
	WordAlign int
	// Inet6Family is the value of AF_INET6.
	Inet6Family uint8
	// LinkAddrLen is sizeof(struct sockaddr_dl).
	LinkAddrLen int
}

var (
	// Darwin is the macOS layout.
	Darwin = Layout{Name: "darwin", HeaderLen: 92, WordAlign: 4, Inet6Family: 30, LinkAddrLen: 20}
	// FreeBSD is the 64-bit FreeBSD layout.
	FreeBSD = Layout{Name: "freebsd", HeaderLen: 152, WordAlign: 8, Inet6Family: 28, LinkAddrLen: 54}
)

// roundup pads a sockaddr length to the next word. A zero length still
// occupies one word.
func (l Layout) roundup(n int) int {
	if n == 0 {
		return l.WordAlign
	}
	return 1 + ((n - 1) | (l.WordAlign - 1))
}

// Message types
const (
	RTM_ADD      = 0x1
	RTM_DELETE   = 0x2
	RTM_CHANGE   = 0x3
	RTM_GET      = 0x4
	RTM_LOSING   = 0x5
	RTM_REDIRECT = 0x6
	RTM_MISS     = 0x7
	RTM_LOCK     = 0x8
	RTM_RESOLVE  = 0xb
	RTM_NEWADDR  = 0xc
	RTM_DELADDR  = 0xd
	RTM_IFINFO   = 0xe
)

// RTM_VERSION is the only header version understood.
const RTM_VERSION = 5

// Route flags
const (
	RTF_UP      = 0x1
	RTF_GATEWAY = 0x2
	RTF_HOST    = 0x4
	RTF_REJECT  = 0x8
	RTF_DYNAMIC = 0x10
	RTF_DONE    = 0x40
	RTF_STATIC  = 0x800
)

// Socket address bits, in slot order
const (
	RTA_DST     = 0x1
	RTA_GATEWAY = 0x2
	RTA_NETMASK = 0x4
	RTA_GENMASK = 0x8
	RTA_IFP     = 0x10
	RTA_IFA     = 0x20
	RTA_AUTHOR  = 0x40
	RTA_BRD     = 0x80

	rtaxMax = 8
)

// Address families shared by every flavour
const (
	AF_UNSPEC = 0
	AF_INET   = 2
	AF_LINK   = 18
)

const (
	sizeofSockaddrInet  = 16
	sizeofSockaddrInet6 = 28
)

// TypeString names a message type for error messages.
func TypeString(t uint8) string {
	switch t {
	case RTM_ADD:
		return "RTM_ADD"
	case RTM_DELETE:
		return "RTM_DELETE"
	case RTM_CHANGE:
		return "RTM_CHANGE"
	case RTM_GET:
		return "RTM_GET"
	case RTM_NEWADDR:
		return "RTM_NEWADDR"
	case RTM_DELADDR:
		return "RTM_DELADDR"
	case RTM_IFINFO:
		return "RTM_IFINFO"
	default:
		return "RTM_" + strconv.Itoa(int(t))
	}
}
