// Package httpwire implements an incremental HTTP/1.1 response parser (C3).
// The parser consumes byte slices as they arrive from the socket and exposes
// a monotonically advancing state; it never blocks and never requires the
// full response to be buffered at once.
package httpwire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// State is the parser's current stage. States only ever advance forward,
// except for Body/Done which are reached exactly once per response.
type State int

const (
	StateInit State = iota
	StateStatusLine
	StateHeaders
	StateBody
	StateDone
	StateError
)

// Parser incrementally tokenizes one HTTP/1.1 response.
type Parser struct {
	state State

	buf bytes.Buffer // unconsumed bytes carried across Feed calls

	MajorVersion int
	MinorVersion int
	StatusCode   int

	ContentLength int64 // -1 if not provided
	Chunked       bool
	ShouldClose   bool

	BodyLength int64 // bytes of body accumulated so far

	chunkRemaining int64 // bytes left in the current chunk (chunked mode)
	chunkState     chunkState

	Err error
}

type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataCRLF
	chunkTrailers
)

// New returns a Parser ready to consume the start of a response.
func New() *Parser {
	return &Parser{state: StateInit, ContentLength: -1}
}

// Reset reinitializes the parser for a new response on the same connection,
// carrying forward no prior state — called when the driver switches from
// Writing to Reading.
func (p *Parser) Reset() {
	p.buf.Reset()
	p.state = StateInit
	p.MajorVersion, p.MinorVersion, p.StatusCode = 0, 0, 0
	p.ContentLength = -1
	p.Chunked = false
	p.ShouldClose = false
	p.BodyLength = 0
	p.chunkRemaining = 0
	p.chunkState = chunkSize
	p.Err = nil
}

// ReadDone reports whether a full response has been parsed.
func (p *Parser) ReadDone() bool { return p.state == StateDone }

// Failed reports whether the parser hit malformed input.
func (p *Parser) Failed() bool { return p.state == StateError }

// Feed supplies newly-read bytes, in any chunking the caller's reads happen
// to produce — feeding a response one byte at a time or all at once yields
// identical final state. The parser owns its own
// internal buffer, so the caller never needs to track or re-supply
// unconsumed bytes between calls; Feed always reports data fully consumed.
func (p *Parser) Feed(data []byte) (consumed int, err error) {
	p.buf.Write(data)

	for {
		switch p.state {
		case StateInit:
			p.state = StateStatusLine
		case StateStatusLine:
			line, ok := p.takeLine()
			if !ok {
				return len(data), nil
			}
			if err := p.parseStatusLine(line); err != nil {
				p.state = StateError
				p.Err = err
				return len(data), err
			}
			p.state = StateHeaders
		case StateHeaders:
			line, ok := p.takeLine()
			if !ok {
				return len(data), nil
			}
			if line == "" {
				p.enterBody()
				continue
			}
			if err := p.parseHeaderLine(line); err != nil {
				p.state = StateError
				p.Err = err
				return len(data), err
			}
		case StateBody:
			if p.consumeBody() {
				p.state = StateDone
			}
			return len(data), p.Err
		case StateDone, StateError:
			return len(data), p.Err
		}
	}
}

// takeLine extracts one CRLF-terminated line from the internal buffer,
// trimming the terminator. It returns ok=false if no full line is buffered
// yet, leaving the buffer untouched.
func (p *Parser) takeLine() (string, bool) {
	b := p.buf.Bytes()
	idx := bytes.Index(b, []byte("\r\n"))
	if idx < 0 {
		// Tolerate bare LF from lenient servers.
		idx = bytes.IndexByte(b, '\n')
		if idx < 0 {
			return "", false
		}
		line := string(b[:idx])
		p.buf.Next(idx + 1)
		return strings.TrimRight(line, "\r"), true
	}
	line := string(b[:idx])
	p.buf.Next(idx + 2)
	return line, true
}

func (p *Parser) parseStatusLine(line string) error {
	// "HTTP/1.1 200 OK"
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return fmt.Errorf("malformed status line: %q", line)
	}
	ver := parts[0]
	if !strings.HasPrefix(ver, "HTTP/") {
		return fmt.Errorf("malformed status line: %q", line)
	}
	verParts := strings.SplitN(strings.TrimPrefix(ver, "HTTP/"), ".", 2)
	maj, err := strconv.Atoi(verParts[0])
	if err != nil {
		return fmt.Errorf("malformed http version: %q", ver)
	}
	min := 0
	if len(verParts) == 2 {
		min, err = strconv.Atoi(verParts[1])
		if err != nil {
			return fmt.Errorf("malformed http version: %q", ver)
		}
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("malformed status code: %q", parts[1])
	}
	p.MajorVersion, p.MinorVersion, p.StatusCode = maj, min, code
	// HTTP/1.0 absent an explicit Connection header defaults to close,
	// chosen over returning a transient "want more data" status.
	if maj == 1 && min == 0 {
		p.ShouldClose = true
	}
	return nil
}

func (p *Parser) parseHeaderLine(line string) error {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return fmt.Errorf("malformed header line: %q", line)
	}
	name := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	switch strings.ToLower(name) {
	case "content-length":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("malformed content-length: %q", value)
		}
		p.ContentLength = n
	case "transfer-encoding":
		if strings.Contains(strings.ToLower(value), "chunked") {
			p.Chunked = true
		}
	case "connection":
		lv := strings.ToLower(value)
		if strings.Contains(lv, "close") {
			p.ShouldClose = true
		} else if strings.Contains(lv, "keep-alive") {
			p.ShouldClose = false
		}
	}
	return nil
}

func (p *Parser) enterBody() {
	p.state = StateBody
	if p.Chunked {
		p.chunkState = chunkSize
	} else if p.ContentLength < 0 {
		// Neither Content-Length nor chunked: body is declared empty. The
		// parser does not read until EOF.
		p.ContentLength = 0
	}
}

// consumeBody advances body parsing using whatever bytes are currently
// buffered, returning true once the message is fully parsed.
func (p *Parser) consumeBody() bool {
	if p.Chunked {
		return p.consumeChunked()
	}
	avail := int64(p.buf.Len())
	need := p.ContentLength - p.BodyLength
	take := need
	if avail < take {
		take = avail
	}
	if take > 0 {
		p.buf.Next(int(take))
		p.BodyLength += take
	}
	return p.BodyLength >= p.ContentLength
}

func (p *Parser) consumeChunked() bool {
	for {
		switch p.chunkState {
		case chunkSize:
			line, ok := p.takeLine()
			if !ok {
				return false
			}
			// Chunk extensions (after ';') are ignored.
			if idx := strings.IndexByte(line, ';'); idx >= 0 {
				line = line[:idx]
			}
			line = strings.TrimSpace(line)
			n, err := strconv.ParseInt(line, 16, 64)
			if err != nil || n < 0 {
				p.state = StateError
				p.Err = fmt.Errorf("malformed chunk size: %q", line)
				return false
			}
			if n == 0 {
				p.chunkState = chunkTrailers
				continue
			}
			p.chunkRemaining = n
			p.chunkState = chunkData
		case chunkData:
			avail := int64(p.buf.Len())
			take := p.chunkRemaining
			if avail < take {
				take = avail
			}
			if take > 0 {
				p.buf.Next(int(take))
				p.BodyLength += take
				p.chunkRemaining -= take
			}
			if p.chunkRemaining > 0 {
				return false
			}
			p.chunkState = chunkDataCRLF
		case chunkDataCRLF:
			if _, ok := p.takeLine(); !ok {
				return false
			}
			p.chunkState = chunkSize
		case chunkTrailers:
			// Trailers are ignored; consume lines until the blank
			// line terminating the trailer block.
			line, ok := p.takeLine()
			if !ok {
				return false
			}
			if line == "" {
				return true
			}
		}
	}
}
