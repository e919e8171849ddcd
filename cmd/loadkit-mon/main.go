// Command loadkit-mon is the passive companion monitoring agent: it
// listens on a TCP port and answers the line protocol loadkit's driver
// polls for external CPU/memory sampling (HELLO, CPU, MEM, BYE/QUIT).
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/loadkit/loadkit/internal/monitor"
)

func main() {
	addr := pflag.StringP("listen", "l", ":9280", "address to listen on")
	pflag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loadkit-mon:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "loadkit-mon: listening on %s\n", ln.Addr())

	agent := monitor.NewAgent()
	if err := agent.Serve(ln); err != nil {
		fmt.Fprintln(os.Stderr, "loadkit-mon:", err)
		os.Exit(1)
	}
}
