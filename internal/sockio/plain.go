//go:build unix

package sockio

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/loadkit/loadkit/internal/urlset"
)

// PlainSocket is a non-blocking TCP socket.
type PlainSocket struct {
	fd        int
	connected bool
}

// NewPlainSocket allocates (but does not connect) a non-blocking TCP socket
// for the given address family.
func NewPlainSocket(v6 bool) (*PlainSocket, error) {
	domain := unix.AF_INET
	if v6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	_ = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, &unix.Linger{Onoff: 0, Linger: 0})
	return &PlainSocket{fd: fd}, nil
}

func (s *PlainSocket) FD() int { return s.fd }

// Connect issues the non-blocking connect. EINPROGRESS is success:
// completion is discovered later through write readiness.
func (s *PlainSocket) Connect(ep urlset.Endpoint) Status {
	var sa unix.Sockaddr
	if ep.IsV6 {
		a := &unix.SockaddrInet6{Port: int(ep.Port)}
		copy(a.Addr[:], ep.Addr[:])
		sa = a
	} else {
		a := &unix.SockaddrInet4{Port: int(ep.Port)}
		copy(a.Addr[:], ep.Addr[:4])
		sa = a
	}
	err := unix.Connect(s.fd, sa)
	if err == nil {
		s.connected = true
		return StatusOK
	}
	if err == unix.EINPROGRESS || err == unix.EALREADY {
		return StatusOK
	}
	return StatusSocketError
}

func (s *PlainSocket) Read(buf []byte) (int, Status) {
	n, err := unix.Read(s.fd, buf)
	if err == nil {
		if n == 0 {
			return 0, StatusEOF
		}
		return n, StatusOK
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, StatusNeedRead
	}
	if err == unix.EINTR {
		return 0, StatusNeedRead
	}
	return 0, StatusSocketError
}

func (s *PlainSocket) Write(buf []byte) (int, Status) {
	n, err := unix.Write(s.fd, buf)
	if err == nil {
		return n, StatusOK
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, StatusNeedWrite
	}
	if err == unix.EINTR {
		return 0, StatusNeedWrite
	}
	return 0, StatusSocketError
}

func (s *PlainSocket) Close() Status {
	if err := unix.Close(s.fd); err != nil {
		return StatusSocketError
	}
	return StatusOK
}
