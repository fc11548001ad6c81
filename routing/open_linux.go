package routing

import (
	"github.com/wesleywu/routesock/internal/socket"
	"github.com/wesleywu/routesock/route"
)

// Open opens an rtnetlink handle.
func Open(opts ...Option) (Handle, error) {
	o := newOptions(opts)
	s, err := socket.OpenNetlink()
	if err != nil {
		return nil, route.Communication("open", err)
	}
	if o.socketBuffer > 0 {
		if err := s.SetReadBuffer(o.socketBuffer); err != nil {
			s.Close()
			return nil, route.Communication("open", err)
		}
	}
	n := NewNetlink(s, opts...)
	if n.pid, err = s.PortID(); err != nil {
		s.Close()
		return nil, route.Communication("open", err)
	}
	if len(o.groups) > 0 {
		if err := n.Subscribe(o.groups...); err != nil {
			s.Close()
			return nil, err
		}
	}
	return n, nil
}
