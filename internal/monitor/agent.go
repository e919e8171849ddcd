package monitor

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Agent answers the line protocol Dial speaks: HELLO, CPU, MEM, BYE/QUIT.
// One Agent serves every connection from a single listener; CPU and memory
// are sampled fresh on each request rather than cached, since the protocol
// has no notion of a sampling interval beyond "since your last CPU call".
type Agent struct {
	mu sync.Mutex
}

// NewAgent returns an Agent ready to Serve.
func NewAgent() *Agent { return &Agent{} }

// Serve accepts connections on ln until it returns an error (typically from
// ln being closed).
func (a *Agent) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go a.handle(conn)
	}
}

func (a *Agent) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		reply, done := a.dispatch(cmd)
		if _, err := w.WriteString(reply + "\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
		if done {
			return
		}
	}
}

func (a *Agent) dispatch(cmd string) (reply string, closeConn bool) {
	switch cmd {
	case "HELLO":
		return "Hi!", false
	case "CPU":
		return a.cpuFraction(), false
	case "MEM":
		return a.memFraction(), false
	case "BYE", "QUIT":
		return "BYE", true
	default:
		return "Invalid command", false
	}
}

func (a *Agent) cpuFraction() string {
	// cpu.Percent(0, false) reports the non-idle percentage averaged since
	// its own previous call, matching the protocol's "since last CPU"
	// semantics for free.
	a.mu.Lock()
	defer a.mu.Unlock()
	pcts, err := cpu.Percent(0, false)
	if err != nil || len(pcts) == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.4f", pcts[0]/100.0)
}

func (a *Agent) memFraction() string {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return "0.0"
	}
	return fmt.Sprintf("%.4f", vmem.UsedPercent/100.0)
}
