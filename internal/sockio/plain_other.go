//go:build !unix

package sockio

import (
	"net"
	"time"

	"github.com/loadkit/loadkit/internal/urlset"
)

// PlainSocket on non-unix platforms falls back to net.TCPConn with a
// near-zero deadline trick to emulate non-blocking semantics, since
// golang.org/x/sys/unix raw sockets aren't available. FD-based readiness
// registration is unavailable here; internal/reactor's generic backend
// drives this variant by polling on a short interval instead.
type PlainSocket struct {
	conn *net.TCPConn
}

func NewPlainSocket(v6 bool) (*PlainSocket, error) {
	return &PlainSocket{}, nil
}

func (s *PlainSocket) FD() int { return -1 }

func (s *PlainSocket) Connect(ep urlset.Endpoint) Status {
	conn, err := net.DialTimeout("tcp", ep.TCPAddr().String(), 200*time.Millisecond)
	if err != nil {
		return StatusSocketError
	}
	tc := conn.(*net.TCPConn)
	_ = tc.SetNoDelay(true)
	_ = tc.SetLinger(0)
	s.conn = tc
	return StatusOK
}

func (s *PlainSocket) Read(buf []byte) (int, Status) {
	_ = s.conn.SetReadDeadline(time.Now())
	n, err := s.conn.Read(buf)
	return classify(n, err, true)
}

func (s *PlainSocket) Write(buf []byte) (int, Status) {
	_ = s.conn.SetWriteDeadline(time.Now())
	n, err := s.conn.Write(buf)
	return classify(n, err, false)
}

func (s *PlainSocket) Close() Status {
	if err := s.conn.Close(); err != nil {
		return StatusSocketError
	}
	return StatusOK
}

func classify(n int, err error, isRead bool) (int, Status) {
	if err == nil {
		if isRead && n == 0 {
			return 0, StatusEOF
		}
		return n, StatusOK
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if isRead {
			return 0, StatusNeedRead
		}
		return 0, StatusNeedWrite
	}
	return 0, StatusSocketError
}
