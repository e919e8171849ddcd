package urlset

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
)

// Registry is the process-wide, ordered sequence of target Urls. It is
// populated exactly once via InitSingle or InitFile and is safe to share
// across worker goroutines without synchronization once initialized.
type Registry struct {
	mu          sync.Mutex
	urls        []*Url
	initialized bool
}

// New returns an empty, uninitialized Registry.
func New() *Registry { return &Registry{} }

// InitSingle initializes the registry with exactly one target URL.
func (r *Registry) InitSingle(ctx context.Context, raw string, family Family) error {
	u, err := Parse(raw)
	if err != nil {
		return err
	}
	if err := u.Resolve(ctx, DefaultResolver, family); err != nil {
		return err
	}
	return r.init([]*Url{u})
}

// InitFile initializes the registry from a newline-separated file of URLs.
func (r *Registry) InitFile(ctx context.Context, path string, family Family) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading url file %q: %w", path, err)
	}
	defer f.Close()

	var urls []*Url
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := Parse(line)
		if err != nil {
			return err
		}
		if err := u.Resolve(ctx, DefaultResolver, family); err != nil {
			return err
		}
		urls = append(urls, u)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading url file %q: %w", path, err)
	}
	if len(urls) == 0 {
		return fmt.Errorf("url file %q contains no urls", path)
	}
	return r.init(urls)
}

func (r *Registry) init(urls []*Url) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("url registry already initialized")
	}
	r.urls = urls
	r.initialized = true
	return nil
}

// Len reports how many Urls are registered.
func (r *Registry) Len() int { return len(r.urls) }

// Next returns a uniformly-selected Url using rng. With exactly one
// registered Url it deterministically returns it without consuming rng.
func (r *Registry) Next(rng *rand.Rand) *Url {
	switch len(r.urls) {
	case 0:
		return nil
	case 1:
		return r.urls[0]
	default:
		return r.urls[rng.IntN(len(r.urls))]
	}
}

// At returns the Url at index i, for round-robin slot bookkeeping by callers
// that need a stable reference rather than a random draw.
func (r *Registry) At(i int) *Url { return r.urls[i] }

// IsSameServer reports whether u1 and u2 resolve to the same endpoint at
// round-robin slot seq — used by the connection driver to decide whether a
// socket can be kept open across a URL switch.
func IsSameServer(u1, u2 *Url, seq uint64) bool {
	if u1 == u2 {
		return true
	}
	return u1.Endpoint(seq).Equal(u2.Endpoint(seq))
}
