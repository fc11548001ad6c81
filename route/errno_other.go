//go:build !unix

package route

import "syscall"

func errnoKind(syscall.Errno) ErrorKind {
	return KindKernel
}
