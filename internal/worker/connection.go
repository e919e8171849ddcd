package worker

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/loadkit/loadkit/internal/httpwire"
	"github.com/loadkit/loadkit/internal/reactor"
	"github.com/loadkit/loadkit/internal/sockio"
	"github.com/loadkit/loadkit/internal/urlset"
)

// State is a connection's position in its lifecycle. Idle and Closed
// connections hold no socket, nor does a Thinking connection waiting out a
// connect backoff; every other state owns one.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateWriting
	StateReading
	StateThinking
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateWriting:
		return "writing"
	case StateReading:
		return "reading"
	case StateThinking:
		return "thinking"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection drives one socket through a never-ending sequence of requests
// against URLs drawn from the worker's registry. It is owned by exactly one
// Worker and is only ever touched from that worker's goroutine: no field
// here needs synchronization.
type Connection struct {
	index  int
	worker *Worker

	state State
	sock  sockio.Socket
	url   *urlset.Url

	readBuf  [64 * 1024]byte
	writeBuf []byte
	writeOff int

	parser *httpwire.Parser

	// wantInterest is the direction(s) currently registered with the
	// poller. A TLS socket can demand the opposite direction from what the
	// state machine expects (a Read may need to write a renegotiation
	// record, or vice versa); when that happens backwards is set and both
	// directions stay armed until the stalled operation clears.
	wantInterest reactor.Interest
	backwards    bool

	requestStart time.Time
	thinkUntil   time.Time
	// reconnectAfterThink distinguishes a post-failure backoff wait (no
	// socket to reuse once the timer fires) from an ordinary think-time
	// wait between keep-alive requests (socket may still be open).
	reconnectAfterThink bool

	rng *rand.Rand
	seq uint64

	// keepRunning is cleared by Worker.resize when this connection is
	// being shrunk out of the pool. It drains gracefully: the connection
	// finishes whatever request is in flight and closes at the next
	// request/close boundary instead of being torn down mid-exchange.
	keepRunning bool
}

// connectBackoff is the fixed short delay before retrying a failed connect
// attempt, applied on top of the reactor's own Thinking timer rather than a
// thread sleep so a backed-off connection never blocks its siblings.
const connectBackoff = 200 * time.Millisecond

func newConnection(w *Worker, index int) *Connection {
	return &Connection{
		index:       index,
		worker:      w,
		state:       StateIdle,
		parser:      httpwire.New(),
		rng:         rand.New(rand.NewPCG(uint64(w.cfg.Index), uint64(index))),
		keepRunning: true,
	}
}

// start draws the first URL and begins connecting. Called once per
// connection when the worker brings its pool up.
func (c *Connection) start() {
	c.openNext(false)
}

// openNext selects the next target URL and either reuses the existing
// socket (same server, keep-alive enabled) or tears it down and opens a
// fresh one.
func (c *Connection) openNext(haveSocket bool) {
	next := c.worker.cfg.Registry.Next(c.rng)
	if next == nil {
		c.fail(fmt.Errorf("no urls registered"))
		return
	}
	// liveSeq is the slot the currently-bound socket (if any) was opened
	// against; it must be compared at that slot, not the next one, since
	// the socket's actual endpoint was chosen with the old seq.
	liveSeq := c.seq
	c.seq++

	canReuse := haveSocket && c.worker.cfg.KeepAlive && c.url != nil &&
		urlset.IsSameServer(c.url, next, liveSeq) && !c.parser.ShouldClose

	c.url = next
	if canReuse {
		c.beginWrite()
		return
	}
	if haveSocket {
		c.teardownSocket()
	}
	c.seq++
	c.beginConnect()
}

func (c *Connection) beginConnect() {
	ep := c.url.Endpoint(c.seq)
	v6 := ep.IsV6
	var sock sockio.Socket
	var err error
	if c.url.Scheme == "https" {
		sock, err = sockio.NewTLSSocket(v6, c.url.Host, c.worker.cfg.TLSConfig)
	} else {
		sock, err = sockio.NewPlainSocket(v6)
	}
	if err != nil {
		c.fail(fmt.Errorf("allocating socket: %w", err))
		return
	}
	c.sock = sock
	c.state = StateConnecting

	st := sock.Connect(ep)
	switch st {
	case sockio.StatusOK:
		c.worker.cfg.Stats.Current().RecordSocketOpened()
		c.worker.register(c, reactor.Writable)
	case sockio.StatusNeedWrite, sockio.StatusNeedRead:
		c.worker.register(c, reactor.Writable)
	default:
		c.fail(fmt.Errorf("connect failed: %s", st))
	}
}

func (c *Connection) beginWrite() {
	c.writeBuf = composeRequest(c.worker.cfg, c.url)
	c.writeOff = 0
	c.parser.Reset()
	c.requestStart = time.Now()
	c.state = StateWriting
	c.worker.register(c, reactor.Writable)
}

// OnWritable is invoked by the worker when the poller reports the fd
// writable.
func (c *Connection) OnWritable() {
	switch c.state {
	case StateConnecting:
		c.completeConnect()
	case StateWriting:
		c.flushWrite()
	case StateReading:
		// A TLS record needed to write (renegotiation, alert) while the
		// state machine was expecting to read; retry the read now that
		// writability fired.
		c.continueRead()
	default:
	}
}

// OnReadable is invoked by the worker when the poller reports the fd
// readable.
func (c *Connection) OnReadable() {
	switch c.state {
	case StateReading:
		c.continueRead()
	case StateWriting:
		// Symmetric backwards case: a pending write needed a read to
		// proceed (TLS only; plain sockets never do this).
		c.flushWrite()
	default:
	}
}

// completeConnect is reached when the poller reports the connecting fd
// writable, the standard non-blocking-connect completion signal. A refused
// or reset connection is discovered by the poller's error flag (which fails
// the connection before this runs) or by the write or read that follows,
// rather than a getsockopt(SO_ERROR) probe, keeping sockio's Socket
// interface free of a connect-specific query method.
func (c *Connection) completeConnect() {
	c.beginWrite()
}

func (c *Connection) flushWrite() {
	for c.writeOff < len(c.writeBuf) {
		n, st := c.sock.Write(c.writeBuf[c.writeOff:])
		if n > 0 {
			c.worker.cfg.Stats.Current().AddBytesWritten(int64(n))
			c.writeOff += n
		}
		switch st {
		case sockio.StatusOK:
			continue
		case sockio.StatusNeedWrite:
			c.worker.register(c, reactor.Writable)
			return
		case sockio.StatusNeedRead:
			c.armBackwards()
			return
		default:
			c.fail(fmt.Errorf("write failed: %s", st))
			return
		}
	}
	c.state = StateReading
	c.worker.register(c, reactor.Readable)
}

func (c *Connection) continueRead() {
	for {
		n, st := c.sock.Read(c.readBuf[:])
		if n > 0 {
			c.worker.cfg.Stats.Current().AddBytesRead(int64(n))
			if _, perr := c.parser.Feed(c.readBuf[:n]); perr != nil {
				c.fail(fmt.Errorf("parse error: %w", perr))
				return
			}
			if c.parser.ReadDone() {
				c.finishRequest(true)
				return
			}
			continue
		}
		switch st {
		case sockio.StatusNeedRead:
			c.worker.register(c, reactor.Readable)
			return
		case sockio.StatusNeedWrite:
			c.armBackwards()
			return
		case sockio.StatusEOF:
			// A complete response has already reached finishRequest above
			// (one with neither Content-Length nor chunked framing ends at
			// its header block), so EOF here always cuts a response short.
			c.fail(fmt.Errorf("connection closed mid-response"))
			return
		default:
			c.fail(fmt.Errorf("read failed: %s", st))
			return
		}
	}
}

// armBackwards records that the socket's current blocked direction is the
// opposite of what the state machine expects, and registers both
// directions so either readiness edge wakes the connection back up.
func (c *Connection) armBackwards() {
	c.backwards = true
	c.worker.register(c, reactor.Readable|reactor.Writable)
}

func (c *Connection) finishRequest(ok bool) {
	c.backwards = false
	latency := time.Since(c.requestStart).Nanoseconds()
	if ok && c.parser.StatusCode >= 200 && c.parser.StatusCode < 300 {
		c.worker.cfg.Stats.Current().RecordSuccess(latency)
	} else {
		c.worker.cfg.Stats.Current().RecordFailure(latency)
	}

	if c.worker.cfg.OneShot || !c.keepRunning {
		c.state = StateClosing
		c.teardownSocket()
		c.state = StateClosed
		return
	}

	if c.worker.cfg.ThinkTime > 0 {
		c.state = StateThinking
		c.thinkUntil = time.Now().Add(c.worker.cfg.ThinkTime)
		c.worker.scheduleThink(c)
		return
	}
	c.openNext(true)
}

// Tick is called by the worker once a connection's think time (or
// post-failure backoff) has elapsed.
func (c *Connection) Tick(now time.Time) {
	if c.state != StateThinking || now.Before(c.thinkUntil) {
		return
	}
	if !c.keepRunning {
		c.teardownSocket()
		c.state = StateClosed
		return
	}
	reconnect := c.reconnectAfterThink
	c.reconnectAfterThink = false
	c.openNext(!reconnect)
}

func (c *Connection) teardownSocket() {
	if c.sock == nil {
		return
	}
	c.worker.unregister(c)
	st := c.sock.Close()
	if st.Pending() {
		// The socket asked for more I/O to finish a TLS shutdown; the
		// connection is going away regardless, so the close is best-effort.
		_ = st
	}
	c.sock = nil
}

// fail records a local socket or parse error and recovers the connection.
// Per the recovery policy, none of these paths ever produce a latency
// sample (latency is only meaningful for a fully completed response); a
// failure while connecting backs off before retrying, while a failure
// during an established write/read reconnects immediately.
func (c *Connection) fail(err error) {
	connecting := c.state == StateConnecting
	c.worker.cfg.Stats.Current().RecordFailure(-1)
	c.worker.logFailure(c.index, err)
	c.teardownSocket()

	if c.worker.cfg.OneShot || !c.keepRunning {
		c.state = StateClosed
		return
	}
	if connecting {
		c.state = StateThinking
		c.thinkUntil = time.Now().Add(connectBackoff)
		c.reconnectAfterThink = true
		c.worker.scheduleThink(c)
		return
	}
	c.state = StateClosing
	c.openNext(false)
}
