package urlset

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// LookupErrorKind distinguishes a DNS-level failure from an OS/system-level
// failure.
type LookupErrorKind int

const (
	LookupErrorDNS LookupErrorKind = iota
	LookupErrorSystem
)

// LookupError is returned by Lookup on resolution failure.
type LookupError struct {
	Kind    LookupErrorKind
	Message string
	Errno   syscall.Errno
}

func (e *LookupError) Error() string {
	if e.Kind == LookupErrorSystem {
		return fmt.Sprintf("system error resolving host: %s (errno %d)", e.Message, e.Errno)
	}
	return fmt.Sprintf("dns error resolving host: %s", e.Message)
}

// Resolver looks up hostnames into EndpointSets. It wraps net.Resolver so
// tests can inject a fake one.
type Resolver struct {
	net.Resolver
}

// DefaultResolver uses the standard library resolver.
var DefaultResolver = &Resolver{}

// Lookup resolves name to an ordered EndpointSet honoring family. The OS
// resolver's ordering is preserved as the canonical round-robin order.
func (r *Resolver) Lookup(ctx context.Context, name string, family Family) (EndpointSet, error) {
	network := "ip"
	switch family {
	case FamilyV4:
		network = "ip4"
	case FamilyV6:
		network = "ip6"
	}

	ips, err := r.Resolver.LookupIP(ctx, network, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return EndpointSet{}, &LookupError{Kind: LookupErrorDNS, Message: dnsErr.Error()}
		}
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return EndpointSet{}, &LookupError{Kind: LookupErrorSystem, Message: err.Error(), Errno: errno}
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return EndpointSet{}, &LookupError{Kind: LookupErrorDNS, Message: "lookup timed out"}
		}
		return EndpointSet{}, &LookupError{Kind: LookupErrorDNS, Message: err.Error()}
	}

	eps := make([]Endpoint, 0, len(ips))
	for _, ip := range ips {
		eps = append(eps, endpointFromIP(ip))
	}
	return NewEndpointSet(eps), nil
}
