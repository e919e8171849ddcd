//go:build unix

package sockio

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loadkit/loadkit/internal/urlset"
)

func TestTLSSocketHandshakeAndRoundTrip(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tcpAddr := srv.Listener.Addr().(*net.TCPAddr)
	ep := urlset.Endpoint{Port: uint16(tcpAddr.Port)}
	copy(ep.Addr[:4], tcpAddr.IP.To4())

	sock, err := NewTLSSocket(false, "example.com", &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	if st := sock.Connect(ep); st != StatusOK {
		t.Fatalf("Connect: %v", st)
	}

	req := []byte("GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	deadline := time.Now().Add(3 * time.Second)
	for len(req) > 0 && time.Now().Before(deadline) {
		n, st := sock.Write(req)
		switch st {
		case StatusOK:
			req = req[n:]
		case StatusNeedRead, StatusNeedWrite:
			time.Sleep(5 * time.Millisecond)
		default:
			t.Fatalf("Write failed with status %v", st)
		}
	}
	if len(req) != 0 {
		t.Fatal("timed out writing request through TLS handshake")
	}

	var got []byte
	buf := make([]byte, 256)
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, st := sock.Read(buf)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		switch st {
		case StatusOK:
			continue
		case StatusNeedRead, StatusNeedWrite:
			time.Sleep(5 * time.Millisecond)
		case StatusEOF:
			deadline = time.Time{} // stop looping
		default:
			t.Fatalf("Read failed with status %v", st)
		}
		if deadline.IsZero() {
			break
		}
	}
	if len(got) == 0 {
		t.Fatal("expected to read a response through the TLS session")
	}
	if string(got[:15]) != "HTTP/1.1 200 OK" {
		t.Fatalf("unexpected response head: %q", string(got))
	}
}
