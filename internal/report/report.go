// Package report renders a stats.FinalReport as either the human-readable
// console summary or the single-line CSV form (-S), plus the CSV header
// line alone (-T).
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/loadkit/loadkit/internal/stats"
)

// CSVColumns is the exact column order of the short CSV report.
var CSVColumns = []string{
	"name", "throughput", "avg_latency_ms", "threads", "connections",
	"elapsed_s", "completed", "successful", "errors", "sockets",
	"min_latency_ms", "max_latency_ms", "p50_ms", "p90_ms", "p98_ms", "p99_ms",
	"latency_stddev_ms",
	"client_cpu_pct", "server_cpu_pct", "server2_cpu_pct",
	"client_mem_pct", "server_mem_pct", "server2_mem_pct",
	"send_mbps", "receive_mbps",
}

// Samples holds the optional external-monitor readings folded into a
// report; a reading whose Have* flag is false is "not available" and
// renders blank in CSV, omitted in the human form.
type Samples struct {
	ClientCPU, ServerCPU, Server2CPU    float64
	ClientMem, ServerMem, Server2Mem    float64
	HaveServer, HaveServer2, HaveClient bool
}

// Params carries the run-identifying fields the FinalReport itself doesn't
// know (they belong to the driver/CLI, not the statistics layer).
type Params struct {
	Name        string
	Threads     int
	Connections int
}

func msf(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// WriteCSVHeader writes just the header line (the -T flag's whole output).
func WriteCSVHeader(w io.Writer) error {
	_, err := fmt.Fprintln(w, strings.Join(CSVColumns, ","))
	return err
}

// WriteCSV writes one data line matching CSVColumns' order.
func WriteCSV(w io.Writer, p Params, r stats.FinalReport, s Samples) error {
	tput := 0.0
	if r.Elapsed.Seconds() > 0 {
		tput = float64(r.Successful) / r.Elapsed.Seconds()
	}
	fields := []string{
		p.Name,
		strconv.FormatFloat(tput, 'f', 2, 64),
		strconv.FormatFloat(msf(r.AvgLatency), 'f', 3, 64),
		strconv.Itoa(p.Threads),
		strconv.Itoa(p.Connections),
		strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 3, 64),
		strconv.FormatInt(r.Completed, 10),
		strconv.FormatInt(r.Successful, 10),
		strconv.FormatInt(r.Failed, 10),
		strconv.FormatInt(r.SocketsOpened, 10),
		strconv.FormatFloat(msf(r.MinLatency), 'f', 3, 64),
		strconv.FormatFloat(msf(r.MaxLatency), 'f', 3, 64),
		strconv.FormatFloat(msf(r.Percentiles[50]), 'f', 3, 64),
		strconv.FormatFloat(msf(r.Percentiles[90]), 'f', 3, 64),
		strconv.FormatFloat(msf(r.Percentiles[98]), 'f', 3, 64),
		strconv.FormatFloat(msf(r.Percentiles[99]), 'f', 3, 64),
		strconv.FormatFloat(r.StdDevNs/float64(time.Millisecond), 'f', 3, 64),
		optionalFraction(s.HaveClient, s.ClientCPU),
		optionalFraction(s.HaveServer, s.ServerCPU),
		optionalFraction(s.HaveServer2, s.Server2CPU),
		optionalFraction(s.HaveClient, s.ClientMem),
		optionalFraction(s.HaveServer, s.ServerMem),
		optionalFraction(s.HaveServer2, s.Server2Mem),
		strconv.FormatFloat(r.SendMbps, 'f', 3, 64),
		strconv.FormatFloat(r.ReceiveMbps, 'f', 3, 64),
	}
	_, err := fmt.Fprintln(w, strings.Join(fields, ","))
	return err
}

func optionalFraction(have bool, v float64) string {
	if !have {
		return ""
	}
	return strconv.FormatFloat(v*100, 'f', 2, 64)
}

// WriteHuman writes the multi-line console summary.
func WriteHuman(w io.Writer, p Params, r stats.FinalReport, s Samples) {
	tput := 0.0
	if r.Elapsed.Seconds() > 0 {
		tput = float64(r.Successful) / r.Elapsed.Seconds()
	}
	fmt.Fprintf(w, "\nSummary:\n")
	fmt.Fprintf(w, "  Threads:        %d\n", p.Threads)
	fmt.Fprintf(w, "  Connections:    %d\n", p.Connections)
	fmt.Fprintf(w, "  Elapsed:        %.3fs\n", r.Elapsed.Seconds())
	fmt.Fprintf(w, "  Completed:      %d\n", r.Completed)
	fmt.Fprintf(w, "  Successful:     %d\n", r.Successful)
	fmt.Fprintf(w, "  Errors:         %d\n", r.Failed)
	fmt.Fprintf(w, "  Sockets opened: %d\n", r.SocketsOpened)
	fmt.Fprintf(w, "  Throughput:     %.2f req/s\n", tput)
	fmt.Fprintf(w, "  Send:           %.3f Mbps\n", r.SendMbps)
	fmt.Fprintf(w, "  Receive:        %.3f Mbps\n", r.ReceiveMbps)

	fmt.Fprintf(w, "\nLatency:\n")
	fmt.Fprintf(w, "  Min:    %v\n", r.MinLatency)
	fmt.Fprintf(w, "  Avg:    %v\n", r.AvgLatency)
	fmt.Fprintf(w, "  Max:    %v\n", r.MaxLatency)
	fmt.Fprintf(w, "  StdDev: %.3fms\n", r.StdDevNs/float64(time.Millisecond))
	fmt.Fprintf(w, "  p50:    %v\n", r.Percentiles[50])
	fmt.Fprintf(w, "  p90:    %v\n", r.Percentiles[90])
	fmt.Fprintf(w, "  p95:    %v\n", r.Percentiles[95])
	fmt.Fprintf(w, "  p98:    %v\n", r.Percentiles[98])
	fmt.Fprintf(w, "  p99:    %v\n", r.Percentiles[99])

	if s.HaveClient || s.HaveServer || s.HaveServer2 {
		fmt.Fprintf(w, "\nMonitor:\n")
		if s.HaveClient {
			fmt.Fprintf(w, "  Client CPU: %.2f%%  Mem: %.2f%%\n", s.ClientCPU*100, s.ClientMem*100)
		}
		if s.HaveServer {
			fmt.Fprintf(w, "  Server CPU: %.2f%%  Mem: %.2f%%\n", s.ServerCPU*100, s.ServerMem*100)
		}
		if s.HaveServer2 {
			fmt.Fprintf(w, "  Server2 CPU: %.2f%%  Mem: %.2f%%\n", s.Server2CPU*100, s.Server2Mem*100)
		}
	}
}

// WriteInterval writes one progress line during a run.
func WriteInterval(w io.Writer, elapsed time.Duration, r stats.IntervalReport) {
	fmt.Fprintf(w, "[%6.1fs] %8.2f req/s  ok=%d fail=%d\n", elapsed.Seconds(), r.ThroughputPerSecond, r.Successful, r.Failed)
}
