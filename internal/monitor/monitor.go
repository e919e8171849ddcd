// Package monitor implements the external CPU/memory sampling line protocol:
// a tiny TCP client the driver polls once at the end of a run (it does not
// sample during the run), and the companion agent
// binary (cmd/loadkit-mon) that answers it. The protocol is deliberately
// primitive — one command per line, one reply per line — since it only
// ever runs on a trusted, operator-controlled host.
package monitor

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Client talks to one monitor agent. A Client that fails to dial or read
// demotes itself to "unavailable" rather than aborting the run, per the
// driver's optional-external-sampling contract.
type Client struct {
	addr      string
	conn      net.Conn
	rw        *bufio.ReadWriter
	available bool
}

// Dial connects to addr ("host:port") with a short timeout. A dial failure
// is not an error the caller must handle specially: Available reports
// false and every sampling call becomes a no-op.
func Dial(addr string) *Client {
	c := &Client{addr: addr}
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return c
	}
	c.conn = conn
	c.rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if reply, err := c.roundTrip("HELLO"); err != nil || reply != "Hi!" {
		_ = conn.Close()
		c.conn = nil
		return c
	}
	c.available = true
	return c
}

// Available reports whether this client's agent is reachable and speaking
// the expected protocol.
func (c *Client) Available() bool { return c.available }

// CPU returns the non-idle CPU fraction observed since the previous CPU
// call, or (0, false) if the monitor is unavailable or replies with
// anything that doesn't parse as a decimal fraction.
func (c *Client) CPU() (float64, bool) { return c.sampleFraction("CPU") }

// Mem returns the used-memory fraction, or (0, false) on any failure.
func (c *Client) Mem() (float64, bool) { return c.sampleFraction("MEM") }

func (c *Client) sampleFraction(cmd string) (float64, bool) {
	if !c.available {
		return 0, false
	}
	reply, err := c.roundTrip(cmd)
	if err != nil {
		c.available = false
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Close sends BYE and releases the connection. Safe to call on an
// unavailable client.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	_, _ = c.roundTrip("BYE")
	_ = c.conn.Close()
	c.conn = nil
	c.available = false
}

func (c *Client) roundTrip(cmd string) (string, error) {
	if _, err := c.rw.WriteString(cmd + "\n"); err != nil {
		return "", err
	}
	if err := c.rw.Flush(); err != nil {
		return "", err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading reply from %s: %w", c.addr, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
