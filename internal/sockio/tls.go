//go:build unix

package sockio

import (
	"crypto/tls"
	"net"
	"os"
	"time"

	"github.com/loadkit/loadkit/internal/urlset"
)

// TLSSocket layers a TLS client session over a non-blocking PlainSocket. The
// TCP connect is driven through the same raw-fd, EAGAIN-based path as
// PlainSocket; once connected the fd is wrapped in a *net.TCPConn (via
// net.FileConn, which dups the descriptor) so crypto/tls — which has no
// partial-handshake API — can drive the handshake and application I/O with
// short read/write deadlines standing in for non-blocking readiness.
//
// crypto/tls may need to write during a caller's Read (or read during a
// caller's Write) for alerts or session renegotiation. A deadline timeout
// reports only "blocked", not which direction the session was waiting on,
// so a timed-out Read reports StatusNeedRead and a timed-out Write reports
// StatusNeedWrite; this type never reports the opposite direction, and so
// never triggers Connection.backwards (internal/worker).
type TLSSocket struct {
	plain      *PlainSocket
	file       *os.File
	netConn    *net.TCPConn
	tlsConn    *tls.Conn
	cfg        *tls.Config
	serverName string
}

// NewTLSSocket allocates a socket that will present serverName as SNI once
// connected, using cfg (cloned) as the base TLS configuration.
func NewTLSSocket(v6 bool, serverName string, cfg *tls.Config) (*TLSSocket, error) {
	p, err := NewPlainSocket(v6)
	if err != nil {
		return nil, err
	}
	c := cfg.Clone()
	if c == nil {
		c = &tls.Config{}
	}
	if c.ServerName == "" {
		c.ServerName = serverName
	}
	return &TLSSocket{plain: p, cfg: c, serverName: serverName}, nil
}

func (s *TLSSocket) FD() int { return s.plain.FD() }

func (s *TLSSocket) Connect(ep urlset.Endpoint) Status {
	return s.plain.Connect(ep)
}

// ensureSession wraps the connected fd into a net.Conn and starts the TLS
// client-initiating handshake on first use.
func (s *TLSSocket) ensureSession() Status {
	if s.tlsConn != nil {
		return StatusOK
	}
	f := os.NewFile(uintptr(s.plain.fd), "loadkit-tls-socket")
	conn, err := net.FileConn(f)
	_ = f.Close() // FileConn dup'd the fd; release our File wrapper only.
	if err != nil {
		return StatusTLSError
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return StatusTLSError
	}
	s.netConn = tc
	s.tlsConn = tls.Client(tc, s.cfg)
	return StatusOK
}

func (s *TLSSocket) Read(buf []byte) (int, Status) {
	if st := s.ensureSession(); st != StatusOK {
		return 0, st
	}
	// Both deadlines are set, not just the read one: mid-handshake (and on
	// renegotiation) tls.Conn.Read can need to write a record of its own,
	// and an unset write deadline would let that write block indefinitely.
	_ = s.netConn.SetReadDeadline(time.Now())
	_ = s.netConn.SetWriteDeadline(time.Now())
	n, err := s.tlsConn.Read(buf)
	return classifyTLS(n, err, true)
}

func (s *TLSSocket) Write(buf []byte) (int, Status) {
	if st := s.ensureSession(); st != StatusOK {
		return 0, st
	}
	// Symmetric case: a Write can need to read (e.g. the handshake's
	// ServerHello/Certificate flight), so arm both deadlines here too.
	_ = s.netConn.SetWriteDeadline(time.Now())
	_ = s.netConn.SetReadDeadline(time.Now())
	n, err := s.tlsConn.Write(buf)
	return classifyTLS(n, err, false)
}

// Close may suspend: a TLS close may require further I/O to complete the
// bidirectional shutdown, reported as Need* rather than a terminal status.
func (s *TLSSocket) Close() Status {
	if s.tlsConn != nil {
		_ = s.netConn.SetWriteDeadline(time.Now().Add(5 * time.Millisecond))
		if err := s.tlsConn.Close(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return StatusNeedWrite
			}
		}
	}
	return s.plain.Close()
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
	if err.Error() == "EOF" {
		return 0, StatusEOF
	}
	return 0, StatusTLSError
}
