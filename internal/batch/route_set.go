package batch

import (
	"github.com/cespare/xxhash/v2"

	"github.com/wesleywu/routesock/route"
)

// RouteSet is a set of routes keyed by destination network, keeping
// insertion order.
type RouteSet struct {
	index  map[uint64]int // network hash to position in routes
	routes []route.Route
}

// NewRouteSet creates a new RouteSet
func NewRouteSet() *RouteSet {
	return &RouteSet{
		index: make(map[uint64]int),
	}
}

// Add adds r unless a route to the same network is already present. The
// first route for a network wins.
func (rs *RouteSet) Add(r route.Route) bool {
	hash := hashNetwork(r)

	if _, exists := rs.index[hash]; exists {
		return false
	}

	rs.index[hash] = len(rs.routes)
	rs.routes = append(rs.routes, r)
	return true
}

// Contains checks if the set holds a route to r's network
func (rs *RouteSet) Contains(r route.Route) bool {
	_, exists := rs.index[hashNetwork(r)]
	return exists
}

// Len returns the number of routes in the set
func (rs *RouteSet) Len() int {
	return len(rs.routes)
}

// Routes returns the routes in insertion order.
func (rs *RouteSet) Routes() []route.Route {
	out := make([]route.Route, len(rs.routes))
	copy(out, rs.routes)
	return out
}

// hashNetwork hashes the masked destination and prefix length only, so
// 10.1.2.3/8 and 10.0.0.0/8 collide.
func hashNetwork(r route.Route) uint64 {
	h := xxhash.New()

	n := r.Network()
	// 4 bytes for IPv4, 16 for IPv6
	_, _ = h.Write(n.Addr().AsSlice())
	_, _ = h.Write([]byte{byte(r.Family()), r.Prefix})

	return h.Sum64()
}
