//go:build !linux && !darwin && !freebsd

package routing

import (
	"fmt"
	"runtime"

	"github.com/wesleywu/routesock/route"
)

// Open fails: there is no routing backend for this platform.
func Open(...Option) (Handle, error) {
	return nil, &route.Error{
		Kind:  route.KindUnsupported,
		Op:    "open",
		Cause: fmt.Errorf("no kernel routing channel on %s", runtime.GOOS),
	}
}
