package worker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loadkit/loadkit/internal/reactor"
)

// idlePoll is how long Wait blocks when nothing is pending; short enough
// that Thinking connections and command handling stay responsive.
const idlePoll = 10 * time.Millisecond

// Worker runs one OS thread's worth of connections through a single
// reactor.Poller. Exactly one goroutine calls Run for the lifetime of a
// worker; Commands is the only channel other goroutines may use to reach
// it.
type Worker struct {
	cfg    *Config
	poller reactor.Poller
	log    *logrus.Entry

	connections []*Connection
	byKey       map[int]*Connection
	fdBase      int // synthetic key offset for fd-less (non-unix) sockets
	nextIndex   int // next index to hand to a newly grown connection

	Commands chan Command
}

// New builds a worker ready to Run. cfg.Connections connections are
// pre-allocated but not yet started.
func New(cfg *Config, log *logrus.Entry) *Worker {
	w := &Worker{
		cfg:      cfg,
		poller:   reactor.New(),
		log:      log.WithField("worker", cfg.Index),
		byKey:    make(map[int]*Connection),
		fdBase:   1 << 30,
		Commands: make(chan Command, 8),
	}
	w.connections = make([]*Connection, cfg.Connections)
	for i := range w.connections {
		w.connections[i] = newConnection(w, i)
	}
	w.nextIndex = cfg.Connections
	return w
}

// registrationKey returns the integer the poller should use to track c's
// socket. Real unix fds are used directly (epoll/kqueue require them);
// platforms where sockio reports no fd (FD() == -1) get a synthetic,
// per-connection key instead, since the generic poller only needs a
// stable, unique map key.
func (w *Worker) registrationKey(c *Connection) int {
	if fd := c.sock.FD(); fd >= 0 {
		return fd
	}
	return w.fdBase + c.index
}

func (w *Worker) register(c *Connection, interest reactor.Interest) {
	key := w.registrationKey(c)
	if existing, ok := w.byKey[key]; ok && existing == c && c.wantInterest != 0 {
		_ = w.poller.Modify(key, interest)
	} else {
		w.byKey[key] = c
		_ = w.poller.Add(key, interest)
	}
	c.wantInterest = interest
}

func (w *Worker) unregister(c *Connection) {
	if c.sock == nil || c.wantInterest == 0 {
		return
	}
	key := w.registrationKey(c)
	_ = w.poller.Remove(key)
	delete(w.byKey, key)
	c.wantInterest = 0
}

// scheduleThink is a no-op hook: Thinking connections are discovered by the
// periodic Tick sweep in Run rather than a separate timer wheel, which is
// adequate at the connection counts this engine targets.
func (w *Worker) scheduleThink(c *Connection) {}

func (w *Worker) logFailure(index int, err error) {
	w.log.WithFields(logrus.Fields{"connection": index}).Debug(err)
}

// Run drives the event loop until stop is closed or a CommandStop arrives.
func (w *Worker) Run(stop <-chan struct{}) error {
	if err := w.poller.Open(); err != nil {
		return err
	}
	defer w.poller.Close()

	for _, c := range w.connections {
		c.start()
	}

	events := make([]reactor.Event, len(w.connections)*2+16)
	for {
		select {
		case <-stop:
			w.closeAll()
			return nil
		case cmd := <-w.Commands:
			if w.handleCommand(cmd) {
				w.closeAll()
				return nil
			}
		default:
		}

		n, err := w.poller.Wait(events, idlePoll)
		if err != nil {
			w.log.WithError(err).Warn("poller wait failed")
			continue
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			c, ok := w.byKey[ev.Fd]
			if !ok {
				continue
			}
			if ev.Err {
				c.fail(errSocket)
				continue
			}
			if ev.Readable {
				c.OnReadable()
			}
			if ev.Writable {
				c.OnWritable()
			}
		}

		now := time.Now()
		for _, c := range w.connections {
			if c.state == StateThinking {
				c.Tick(now)
			}
		}

		if w.cfg.OneShot && w.allClosed() {
			return nil
		}
	}
}

// allClosed reports whether every connection has finished its one request
// and shut itself down. Only meaningful under OneShot, where Run exits as
// soon as this is true instead of idling until stop is closed.
func (w *Worker) allClosed() bool {
	for _, c := range w.connections {
		if c.state != StateClosed {
			return false
		}
	}
	return true
}

func (w *Worker) closeAll() {
	for _, c := range w.connections {
		c.teardownSocket()
		c.state = StateClosed
	}
}

// handleCommand applies cmd and reports whether the worker should stop.
func (w *Worker) handleCommand(cmd Command) bool {
	switch cmd.Kind {
	case CommandStop:
		return true
	case CommandSetConnections:
		w.resize(cmd.Connections)
	}
	return false
}

// resize grows or gracefully shrinks the live connection pool to n. Growth
// starts fresh connections immediately; shrinking never tears a connection
// down mid-request — it marks the highest-indexed connections to stop and
// lets each drain at its own next request/close boundary (see
// Connection.keepRunning), then the now-closed entries are compacted out
// on the next resize call.
func (w *Worker) resize(n int) {
	if n < 0 {
		n = 0
	}
	live := w.connections[:0]
	for _, c := range w.connections {
		if c.state != StateClosed {
			live = append(live, c)
		}
	}
	w.connections = live

	switch {
	case n > len(w.connections):
		for i := len(w.connections); i < n; i++ {
			c := newConnection(w, w.nextIndex)
			w.nextIndex++
			w.connections = append(w.connections, c)
			c.start()
		}
	case n < len(w.connections):
		for _, c := range w.connections[n:] {
			c.keepRunning = false
		}
	}
}
