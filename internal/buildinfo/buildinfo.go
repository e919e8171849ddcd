// Package buildinfo holds version metadata stamped in at link time via
// -ldflags, the way the CLI reports its own version on --version.
package buildinfo

// Version, Commit and Date are overridden at build time with:
//
//	go build -ldflags "-X github.com/loadkit/loadkit/internal/buildinfo.Version=... \
//	  -X github.com/loadkit/loadkit/internal/buildinfo.Commit=... \
//	  -X github.com/loadkit/loadkit/internal/buildinfo.Date=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders a one-line summary for the --version flag.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
