//go:build unix

package route

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func errnoKind(errno syscall.Errno) ErrorKind {
	switch errno {
	case unix.EEXIST:
		return KindAlreadyExists
	case unix.ESRCH, unix.ENOENT:
		return KindNotFound
	case unix.ENOBUFS:
		return KindOutOfMemory
	default:
		return KindKernel
	}
}
