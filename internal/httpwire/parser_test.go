package httpwire

import (
	"math/rand/v2"
	"testing"
)

func TestParserContentLength(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	p := New()
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !p.ReadDone() {
		t.Fatalf("expected done")
	}
	if p.StatusCode != 200 {
		t.Fatalf("status = %d", p.StatusCode)
	}
	if p.BodyLength != 5 {
		t.Fatalf("body length = %d", p.BodyLength)
	}
}

func TestParserChunked(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	p := New()
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !p.ReadDone() {
		t.Fatalf("expected done")
	}
	if p.BodyLength != 9 {
		t.Fatalf("body length = %d, want 9", p.BodyLength)
	}
}

func TestParserChunkedWithTrailers(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nabc\r\n0\r\nX-Trailer: v\r\n\r\n"
	p := New()
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !p.ReadDone() {
		t.Fatalf("expected done")
	}
}

func TestParserNoLengthNoChunk(t *testing.T) {
	resp := "HTTP/1.1 204 No Content\r\n\r\n"
	p := New()
	if _, err := p.Feed([]byte(resp)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !p.ReadDone() {
		t.Fatalf("expected done")
	}
	if p.BodyLength != 0 {
		t.Fatalf("body length = %d, want 0", p.BodyLength)
	}
}

func TestParserConnectionClose(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
	p := New()
	p.Feed([]byte(resp))
	if !p.ShouldClose {
		t.Fatalf("expected should-close")
	}
}

func TestParserHTTP10DefaultsToClose(t *testing.T) {
	resp := "HTTP/1.0 200 OK\r\nContent-Length: 0\r\n\r\n"
	p := New()
	p.Feed([]byte(resp))
	if !p.ShouldClose {
		t.Fatalf("HTTP/1.0 without Connection header should default to close")
	}
}

func TestParserHeaderCaseInsensitive(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nCONTENT-LENGTH: 3\r\ntransfer-ENCODING: identity\r\n\r\nabc"
	p := New()
	p.Feed([]byte(resp))
	if p.ContentLength != 3 {
		t.Fatalf("content length = %d", p.ContentLength)
	}
	if p.Chunked {
		t.Fatalf("should not be chunked")
	}
}

func TestParserMalformed(t *testing.T) {
	p := New()
	_, err := p.Feed([]byte("not an http response\r\n\r\n"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !p.Failed() {
		t.Fatalf("expected failed state")
	}
}

// TestParserIdempotentAcrossChunkBoundaries feeds the same well-formed
// response in 50 random splits into 1- to 4-byte pieces and checks the final
// state always matches feeding it whole.
func TestParserIdempotentAcrossChunkBoundaries(t *testing.T) {
	resp := []byte("HTTP/1.1 200 OK\r\nContent-Length: 11\r\nX-Foo: bar\r\n\r\nhello world")

	whole := New()
	whole.Feed(resp)

	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		p := New()
		i := 0
		for i < len(resp) {
			n := 1 + rng.IntN(4)
			if i+n > len(resp) {
				n = len(resp) - i
			}
			p.Feed(resp[i : i+n])
			i += n
		}
		if p.ReadDone() != whole.ReadDone() || p.StatusCode != whole.StatusCode || p.BodyLength != whole.BodyLength {
			t.Fatalf("trial %d: state diverged from whole-buffer feed", trial)
		}
	}
}
