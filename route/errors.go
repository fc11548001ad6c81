package route

import (
	"fmt"
	"syscall"
)

// ErrorKind represents the category of a routing operation failure.
type ErrorKind int

const (
	// KindCommunication indicates a socket create/read/write failure
	KindCommunication ErrorKind = iota
	// KindProtocol indicates a malformed, truncated or mismatched kernel message
	KindProtocol
	// KindAlreadyExists indicates the kernel refused an add of an existing route
	KindAlreadyExists
	// KindNotFound indicates no matching route in the kernel table
	KindNotFound
	// KindOutOfMemory indicates the kernel ran out of buffer space
	KindOutOfMemory
	// KindKernel indicates any other kernel errno, kept in Error.Code
	KindKernel
	// KindUnexpectedMessage indicates a reply of the wrong message type
	KindUnexpectedMessage
	// KindInvalid indicates a route that cannot be encoded
	KindInvalid
	// KindUnsupported indicates a platform without a routing backend
	KindUnsupported
)

// String returns a string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindCommunication:
		return "Communication"
	case KindProtocol:
		return "Protocol"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotFound:
		return "NotFound"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindKernel:
		return "Kernel"
	case KindUnexpectedMessage:
		return "UnexpectedMessage"
	case KindInvalid:
		return "Invalid"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "UnknownError"
	}
}

// Error is returned by every routing operation.
type Error struct {
	Kind  ErrorKind
	Op    string // add, delete, get, monitor, open
	Code  int    // raw kernel error code, 0 when not from the kernel
	Cause error
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrCommunication     = &Error{Kind: KindCommunication}
	ErrProtocol          = &Error{Kind: KindProtocol}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrOutOfMemory       = &Error{Kind: KindOutOfMemory}
	ErrKernel            = &Error{Kind: KindKernel}
	ErrUnexpectedMessage = &Error{Kind: KindUnexpectedMessage}
	ErrInvalid           = &Error{Kind: KindInvalid}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

func (e *Error) Error() string {
	msg := "route"
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += " failed [" + e.Kind.String() + "]"
	if e.Code != 0 {
		msg += fmt.Sprintf(" code %d", e.Code)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Cause != nil || t.Code != 0 {
		return false
	}
	return t.Kind == e.Kind
}

// IsKernelCategory reports whether the error came back from the kernel as an
// errno, as opposed to a local I/O or decoding failure.
func (e *Error) IsKernelCategory() bool {
	switch e.Kind {
	case KindAlreadyExists, KindNotFound, KindOutOfMemory, KindKernel:
		return true
	}
	return false
}

// Protocolf builds a protocol error for op.
func Protocolf(op, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Op: op, Cause: fmt.Errorf(format, args...)}
}

// Communication wraps an I/O failure of the routing socket.
func Communication(op string, err error) *Error {
	return &Error{Kind: KindCommunication, Op: op, Cause: err}
}

// Unexpected reports a reply of type got where want was expected.
func Unexpected(op string, got, want string) *Error {
	return &Error{Kind: KindUnexpectedMessage, Op: op, Cause: fmt.Errorf("got %s, want %s", got, want)}
}

// FromErrno maps a kernel errno to an error kind. The errno itself stays
// reachable through errors.Is.
func FromErrno(op string, errno syscall.Errno) *Error {
	return &Error{Kind: errnoKind(errno), Op: op, Code: int(errno), Cause: errno}
}
