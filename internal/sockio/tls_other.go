//go:build !unix

package sockio

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/loadkit/loadkit/internal/urlset"
)

// TLSSocket on non-unix platforms dials a plain TCP connection directly and
// layers crypto/tls over it, using the same near-zero deadline trick as
// PlainSocket (see plain_other.go) for both the TCP and TLS record layers.
type TLSSocket struct {
	tcp     *net.TCPConn
	tlsConn *tls.Conn
	cfg     *tls.Config
}

func NewTLSSocket(v6 bool, serverName string, cfg *tls.Config) (*TLSSocket, error) {
	c := cfg.Clone()
	if c == nil {
		c = &tls.Config{}
	}
	if c.ServerName == "" {
		c.ServerName = serverName
	}
	return &TLSSocket{cfg: c}, nil
}

func (s *TLSSocket) FD() int { return -1 }

func (s *TLSSocket) Connect(ep urlset.Endpoint) Status {
	conn, err := net.DialTimeout("tcp", ep.TCPAddr().String(), 200*time.Millisecond)
	if err != nil {
		return StatusSocketError
	}
	tc := conn.(*net.TCPConn)
	_ = tc.SetNoDelay(true)
	s.tcp = tc
	s.tlsConn = tls.Client(tc, s.cfg)
	return StatusOK
}

func (s *TLSSocket) Read(buf []byte) (int, Status) {
	_ = s.tcp.SetReadDeadline(time.Now())
	n, err := s.tlsConn.Read(buf)
	return classifyTLS(n, err, true)
}

func (s *TLSSocket) Write(buf []byte) (int, Status) {
	_ = s.tcp.SetWriteDeadline(time.Now())
	n, err := s.tlsConn.Write(buf)
	return classifyTLS(n, err, false)
}

func (s *TLSSocket) Close() Status {
	_ = s.tcp.SetWriteDeadline(time.Now().Add(5 * time.Millisecond))
	if err := s.tlsConn.Close(); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return StatusNeedWrite
		}
		return StatusTLSError
	}
	return StatusOK
}

func classifyTLS(n int, err error, isRead bool) (int, Status) {
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
	return 0, StatusTLSError
}
