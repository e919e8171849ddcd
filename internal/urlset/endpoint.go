// Package urlset resolves target hostnames into endpoint sets and holds the
// process-wide registry of target URLs (C1 and C4 of the engine).
package urlset

import (
	"bytes"
	"net"
)

// Family selects which address family a lookup should prefer.
type Family int

const (
	FamilyAny Family = iota
	FamilyV4
	FamilyV6
)

// Endpoint is a resolved numeric address with a mutable port. Equality is
// family + bytes + port, so two Endpoints compare equal only when they name
// the exact same socket address.
type Endpoint struct {
	IsV6 bool
	Addr [16]byte // IPv4 uses the low 4 bytes
	Port uint16
}

// unspecified is returned by EndpointSet.Get when the set is empty. It
// compares unequal to any real endpoint because no real lookup produces an
// all-zero, zero-port address for a live host.
var unspecified = Endpoint{}

// Equal reports whether two endpoints name the same family, bytes and port.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.IsV6 == o.IsV6 && e.Port == o.Port && bytes.Equal(e.Addr[:], o.Addr[:])
}

// TCPAddr renders the endpoint as a *net.TCPAddr for dialing.
func (e Endpoint) TCPAddr() *net.TCPAddr {
	if e.IsV6 {
		ip := make(net.IP, 16)
		copy(ip, e.Addr[:])
		return &net.TCPAddr{IP: ip, Port: int(e.Port)}
	}
	ip := make(net.IP, 4)
	copy(ip, e.Addr[:4])
	return &net.TCPAddr{IP: ip, Port: int(e.Port)}
}

func endpointFromIP(ip net.IP) Endpoint {
	var e Endpoint
	if v4 := ip.To4(); v4 != nil {
		copy(e.Addr[:4], v4)
		e.IsV6 = false
		return e
	}
	v6 := ip.To16()
	copy(e.Addr[:], v6)
	e.IsV6 = true
	return e
}

// EndpointSet is an ordered, immutable sequence of Endpoints resolved for one
// hostname. An empty set is legal — it represents a lookup failure and every
// Get call returns the unspecified sentinel.
type EndpointSet struct {
	endpoints []Endpoint
}

// NewEndpointSet builds a set from already-resolved endpoints, preserving the
// resolver's ordering (the canonical round-robin order).
func NewEndpointSet(eps []Endpoint) EndpointSet {
	cp := append([]Endpoint(nil), eps...)
	return EndpointSet{endpoints: cp}
}

// Len reports the number of distinct endpoints in the set.
func (s EndpointSet) Len() int { return len(s.endpoints) }

// Get returns a copy of the seq-th endpoint (mod length) with its port field
// overwritten. An empty set always returns the unspecified sentinel.
func (s EndpointSet) Get(port uint16, seq uint64) Endpoint {
	if len(s.endpoints) == 0 {
		return unspecified
	}
	idx := int(seq % uint64(len(s.endpoints)))
	ep := s.endpoints[idx]
	ep.Port = port
	return ep
}
