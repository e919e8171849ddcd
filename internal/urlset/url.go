package urlset

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Url is a parsed target, immutable after construction. PathQueryFragment is
// the exact request-target used on the wire (path + "?query" + "#fragment").
type Url struct {
	Scheme           string // "http" or "https"
	Host             string // host name only, no port
	Port             uint16
	explicitPort     bool
	Path             string
	RawQuery         string
	Fragment         string
	PathQueryFragment string
	HostHeader       string // "host" or "host:port" when port is non-default
	Endpoints        EndpointSet
}

func defaultPort(scheme string) uint16 {
	if scheme == "https" {
		return 443
	}
	return 80
}

// Parse builds a Url from a raw string without resolving DNS.
func Parse(raw string) (*Url, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", raw)
	}

	host := u.Hostname()
	portStr := u.Port()
	port := defaultPort(u.Scheme)
	explicit := false
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: bad port: %w", raw, err)
		}
		port = uint16(p)
		explicit = true
	}

	hostHeader := host
	if explicit && port != defaultPort(u.Scheme) {
		hostHeader = fmt.Sprintf("%s:%d", host, port)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	pqf := path
	if u.RawQuery != "" {
		pqf += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		pqf += "#" + u.EscapedFragment()
	}

	return &Url{
		Scheme:            u.Scheme,
		Host:              host,
		Port:              port,
		explicitPort:      explicit,
		Path:              path,
		RawQuery:          u.RawQuery,
		Fragment:          u.Fragment,
		PathQueryFragment: pqf,
		HostHeader:        hostHeader,
	}, nil
}

// String reconstructs the original URL form (round-trips Parse for any
// well-formed input).
func (u *Url) String() string {
	s := u.Scheme + "://" + u.Host
	if u.explicitPort && u.Port != defaultPort(u.Scheme) {
		s += fmt.Sprintf(":%d", u.Port)
	}
	s += u.PathQueryFragment
	return s
}

// Resolve performs DNS resolution and populates Endpoints. family selects the
// address family hint; it does not mutate Url except to set Endpoints once.
func (u *Url) Resolve(ctx context.Context, r *Resolver, family Family) error {
	eps, err := r.Lookup(ctx, u.Host, family)
	if err != nil {
		// On a failed lookup Endpoints is left empty (Get then returns the
		// unspecified sentinel) and the error is returned. InitSingle and
		// InitFile pass that error on, so a target that does not resolve
		// fails registry initialization rather than being kept.
		u.Endpoints = EndpointSet{}
		return err
	}
	u.Endpoints = eps
	return nil
}

// Endpoint returns the seq-th resolved endpoint for this Url, stamped with
// its port.
func (u *Url) Endpoint(seq uint64) Endpoint {
	return u.Endpoints.Get(u.Port, seq)
}
