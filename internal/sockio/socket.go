package sockio

import "github.com/loadkit/loadkit/internal/urlset"

// Socket is the contract both the plain and TLS socket variants implement,
// on every platform. All four operations report exactly one Status; n is
// only meaningful when Status is StatusOK or StatusEOF.
type Socket interface {
	// Connect begins (or continues) a non-blocking connect to endpoint.
	Connect(ep urlset.Endpoint) Status
	// FD returns the underlying file descriptor for readiness registration,
	// or -1 where the platform backend does not expose one.
	FD() int
	Read(buf []byte) (int, Status)
	Write(buf []byte) (int, Status)
	Close() Status
}
