package iface

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestResolverCachesLookups(t *testing.T) {
	r := NewResolver(time.Minute)
	calls := 0
	r.lookupName = func(name string) (*net.Interface, error) {
		calls++
		if name != "eth0" {
			return nil, errors.New("no such interface")
		}
		return &net.Interface{Index: 7, Name: "eth0"}, nil
	}
	r.lookupIndex = func(int) (*net.Interface, error) {
		t.Fatal("reverse lookup should be served from cache")
		return nil, nil
	}

	for i := 0; i < 3; i++ {
		idx, err := r.Index("eth0")
		if err != nil {
			t.Fatalf("Index failed: %v", err)
		}
		if idx != 7 {
			t.Errorf("Expected index 7, got %d", idx)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 kernel lookup, got %d", calls)
	}

	name, err := r.Name(7)
	if err != nil {
		t.Fatalf("Name failed: %v", err)
	}
	if name != "eth0" {
		t.Errorf("Expected eth0, got %s", name)
	}
}

func TestResolverErrors(t *testing.T) {
	r := NewResolver(time.Minute)
	r.lookupName = func(string) (*net.Interface, error) {
		return nil, errors.New("no such interface")
	}

	if _, err := r.Index(""); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := r.Index("bogus0"); err == nil {
		t.Error("Expected error for unknown interface")
	}
	if r.Len() != 0 {
		t.Errorf("Failed lookups must not be cached, got %d entries", r.Len())
	}
}

func TestResolverFlush(t *testing.T) {
	r := NewResolver(time.Minute)
	r.lookupName = func(name string) (*net.Interface, error) {
		return &net.Interface{Index: 3, Name: name}, nil
	}
	if _, err := r.Index("lo"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 cached entry, got %d", r.Len())
	}
	r.Flush()
	if r.Len() != 0 {
		t.Errorf("Expected empty cache after flush, got %d", r.Len())
	}
}
