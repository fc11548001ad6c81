//go:build darwin || freebsd

package socket

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenRouting opens a PF_ROUTE socket receiving messages of every family.
func OpenRouting() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	return newSocket(fd, "route")
}
