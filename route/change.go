package route

import "fmt"

// ChangeKind classifies a routing table notification.
type ChangeKind uint8

const (
	ChangeOther ChangeKind = iota
	ChangeAdd
	ChangeDelete
	ChangeChange
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeDelete:
		return "delete"
	case ChangeChange:
		return "change"
	default:
		return "other"
	}
}

// RouteChange is the classified kind of a monitored message. Code keeps the
// raw message type so that Other values stay distinguishable.
type RouteChange struct {
	Kind ChangeKind
	Code uint16
}

// ChangeFromCode classifies a one-byte routing-socket message type:
// 1 add, 2 delete, 3 change, anything else other.
func ChangeFromCode(code uint8) RouteChange {
	switch code {
	case 1:
		return RouteChange{Kind: ChangeAdd, Code: uint16(code)}
	case 2:
		return RouteChange{Kind: ChangeDelete, Code: uint16(code)}
	case 3:
		return RouteChange{Kind: ChangeChange, Code: uint16(code)}
	default:
		return RouteChange{Kind: ChangeOther, Code: uint16(code)}
	}
}

// Other builds an unclassified change carrying code.
func Other(code uint16) RouteChange {
	return RouteChange{Kind: ChangeOther, Code: code}
}

func (c RouteChange) String() string {
	if c.Kind == ChangeOther {
		return fmt.Sprintf("other(%d)", c.Code)
	}
	return c.Kind.String()
}
