// Package iface resolves interface names to kernel indexes and back, caching
// answers for a short time so that bulk route operations naming the same
// device do not hit the kernel for every entry.
package iface

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL is how long a resolved name stays cached.
const DefaultTTL = 30 * time.Second

// Resolver caches name→index and index→name lookups.
type Resolver struct {
	byName  *ttlcache.Cache[string, uint32]
	byIndex *ttlcache.Cache[uint32, string]

	lookupName  func(string) (*net.Interface, error)
	lookupIndex func(int) (*net.Interface, error)
}

// NewResolver creates a resolver whose entries expire after ttl.
func NewResolver(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		byName:      ttlcache.New[string, uint32](ttlcache.WithTTL[string, uint32](ttl)),
		byIndex:     ttlcache.New[uint32, string](ttlcache.WithTTL[uint32, string](ttl)),
		lookupName:  net.InterfaceByName,
		lookupIndex: net.InterfaceByIndex,
	}
}

// Index returns the kernel index of the named interface.
func (r *Resolver) Index(name string) (uint32, error) {
	if name == "" {
		return 0, fmt.Errorf("empty interface name")
	}
	if item := r.byName.Get(name); item != nil {
		return item.Value(), nil
	}
	ifi, err := r.lookupName(name)
	if err != nil {
		return 0, fmt.Errorf("interface %q: %w", name, err)
	}
	idx := uint32(ifi.Index)
	r.byName.Set(name, idx, ttlcache.DefaultTTL)
	r.byIndex.Set(idx, ifi.Name, ttlcache.DefaultTTL)
	return idx, nil
}

// Name returns the name of the interface with index idx.
func (r *Resolver) Name(idx uint32) (string, error) {
	if item := r.byIndex.Get(idx); item != nil {
		return item.Value(), nil
	}
	ifi, err := r.lookupIndex(int(idx))
	if err != nil {
		return "", fmt.Errorf("interface #%d: %w", idx, err)
	}
	r.byIndex.Set(idx, ifi.Name, ttlcache.DefaultTTL)
	r.byName.Set(ifi.Name, idx, ttlcache.DefaultTTL)
	return ifi.Name, nil
}

// Flush drops every cached entry.
func (r *Resolver) Flush() {
	r.byName.DeleteAll()
	r.byIndex.DeleteAll()
}

// Len returns the number of cached names.
func (r *Resolver) Len() int {
	return r.byName.Len()
}

var (
	defaultMu       sync.RWMutex
	defaultResolver = NewResolver(DefaultTTL)
)

// SetDefault replaces the process-wide resolver.
func SetDefault(r *Resolver) {
	defaultMu.Lock()
	defaultResolver = r
	defaultMu.Unlock()
}

// Default returns the process-wide resolver.
func Default() *Resolver {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultResolver
}

// Index resolves name with the process-wide resolver.
func Index(name string) (uint32, error) {
	return Default().Index(name)
}

// Name resolves idx with the process-wide resolver.
func Name(idx uint32) (string, error) {
	return Default().Name(idx)
}
