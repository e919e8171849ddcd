// Package worker implements the client I/O engine's worker event loop (C6)
// and, in the same package, the per-connection state machine it drives
// (C5) — the two are mutually referential (a Connection holds a
// non-owning back-reference to its Worker; a Worker owns a slice of
// Connections) and are kept together rather than split across an import
// cycle between the connection state machine and the event loop.
package worker

import (
	"crypto/tls"
	"time"

	"github.com/loadkit/loadkit/internal/oauth"
	"github.com/loadkit/loadkit/internal/stats"
	"github.com/loadkit/loadkit/internal/urlset"
)

// PresetHeader is a bitmask of well-known headers the caller has already
// supplied verbatim, so request composition must not duplicate them.
type PresetHeader uint8

const (
	PresetHost PresetHeader = 1 << iota
	PresetContentType
	PresetContentLength
	PresetAuthorization
	PresetConnection
	PresetUserAgent
)

func (p PresetHeader) has(h PresetHeader) bool { return p&h != 0 }

// Config is everything the driver hands a worker at construction (C6's
// WorkerConfig).
type Config struct {
	Index          int
	Connections    int
	Method         string
	Body           []byte
	TLSConfig      *tls.Config
	OAuth          *oauth.Config
	BasicAuth      string // "user:pass"; base64-encoded at composition time, empty if unused
	HeaderLines    []string
	Preset         PresetHeader
	ThinkTime      time.Duration
	KeepAlive      bool
	OneShot        bool // issue exactly one request per connection then stop
	Registry       *urlset.Registry
	UserAgent      string

	// Stats is injected by the driver. Connections must always go through
	// Stats.Current() rather than caching the Counters it returns: the
	// aggregator swaps in a fresh block between requests, and a cached
	// pointer would silently stop being observed.
	Stats *stats.Box
}
