//go:build darwin || freebsd

package routing

import (
	"github.com/wesleywu/routesock/internal/codec/rtsock"
	"github.com/wesleywu/routesock/internal/socket"
	"github.com/wesleywu/routesock/route"
)

// Open opens a PF_ROUTE handle for the running kernel.
func Open(opts ...Option) (Handle, error) {
	o := newOptions(opts)
	s, err := socket.OpenRouting()
	if err != nil {
		return nil, route.Communication("open", err)
	}
	if o.socketBuffer > 0 {
		if err := s.SetReadBuffer(o.socketBuffer); err != nil {
			s.Close()
			return nil, route.Communication("open", err)
		}
	}
	return NewRoutingSocket(s, rtsock.Host, opts...), nil
}
