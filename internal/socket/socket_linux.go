package socket

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenNetlink opens a NETLINK_ROUTE socket bound to a kernel-assigned port
// and connected to the kernel.
func OpenNetlink() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("connect", err)
	}
	return newSocket(fd, "netlink-route")
}

// PortID returns the netlink port the kernel assigned on bind.
func (s *Socket) PortID() (uint32, error) {
	var pid uint32
	err := s.control(func(fd int) error {
		sa, err := unix.Getsockname(fd)
		if err != nil {
			return os.NewSyscallError("getsockname", err)
		}
		if nl, ok := sa.(*unix.SockaddrNetlink); ok {
			pid = nl.Pid
		}
		return nil
	})
	return pid, err
}

// Subscribe joins the given rtnetlink multicast groups.
func (s *Socket) Subscribe(groups ...uint32) error {
	return s.control(func(fd int) error {
		for _, g := range groups {
			if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_ADD_MEMBERSHIP, int(g)); err != nil {
				return os.NewSyscallError("setsockopt", err)
			}
		}
		return nil
	})
}
