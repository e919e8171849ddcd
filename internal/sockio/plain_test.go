//go:build unix

package sockio

import (
	"net"
	"testing"
	"time"

	"github.com/loadkit/loadkit/internal/urlset"
)

func TestPlainSocketConnectWriteRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	echoed := make(chan struct{})
	go func() {
		defer close(echoed)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 16)
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		c.Write(buf[:n])
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	ep := urlset.Endpoint{Port: uint16(tcpAddr.Port)}
	copy(ep.Addr[:4], tcpAddr.IP.To4())

	sock, err := NewPlainSocket(false)
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	if st := sock.Connect(ep); st != StatusOK {
		t.Fatalf("Connect returned %v, want ok (in-progress is ok for non-blocking connect)", st)
	}
	if sock.FD() < 0 {
		t.Fatalf("expected a valid fd, got %d", sock.FD())
	}

	deadline := time.Now().Add(time.Second)
	var n int
	var st Status
	for time.Now().Before(deadline) {
		n, st = sock.Write([]byte("ping"))
		if st == StatusOK {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st != StatusOK || n != 4 {
		t.Fatalf("Write: n=%d status=%v", n, st)
	}

	<-echoed

	buf := make([]byte, 16)
	deadline = time.Now().Add(time.Second)
	var rn int
	var rst Status
	for time.Now().Before(deadline) {
		rn, rst = sock.Read(buf)
		if rst == StatusOK {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rst != StatusOK || string(buf[:rn]) != "ping" {
		t.Fatalf("Read: n=%d status=%v buf=%q", rn, rst, buf[:rn])
	}
}

func TestPlainSocketConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening: connection should be refused

	ep := urlset.Endpoint{Port: uint16(addr.Port)}
	copy(ep.Addr[:4], addr.IP.To4())

	sock, err := NewPlainSocket(false)
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	sock.Connect(ep) // non-blocking connect itself reports in-progress as ok

	deadline := time.Now().Add(time.Second)
	buf := make([]byte, 16)
	var st Status
	for time.Now().Before(deadline) {
		_, st = sock.Read(buf)
		if st != StatusNeedRead {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st != StatusSocketError && st != StatusEOF {
		t.Fatalf("expected a socket error or EOF for a refused connection, got %v", st)
	}
}
