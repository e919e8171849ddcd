package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/loadkit/loadkit/internal/stats"
)

func TestWriteCSVHeaderColumnCount(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSVHeader(&buf); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimRight(buf.String(), "\n")
	cols := strings.Split(line, ",")
	if len(cols) != len(CSVColumns) {
		t.Fatalf("header has %d columns, want %d", len(cols), len(CSVColumns))
	}
	if cols[0] != "name" || cols[len(cols)-1] != "receive_mbps" {
		t.Fatalf("unexpected column order: %v", cols)
	}
}

func TestWriteCSVMatchesHeaderWidth(t *testing.T) {
	var agg stats.Aggregator
	agg.Add(stats.Snapshot{Successful: 9, Failed: 1, Latencies: []int64{1e6, 2e6, 3e6}})
	final := agg.Final(time.Second)

	var buf bytes.Buffer
	p := Params{Name: "run1", Threads: 2, Connections: 10}
	if err := WriteCSV(&buf, p, final, Samples{}); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimRight(buf.String(), "\n")
	fields := strings.Split(line, ",")
	if len(fields) != len(CSVColumns) {
		t.Fatalf("data line has %d fields, want %d (line=%q)", len(fields), len(CSVColumns), line)
	}
	if fields[0] != "run1" {
		t.Fatalf("name field = %q, want run1", fields[0])
	}
	if fields[6] != "10" { // completed
		t.Fatalf("completed field = %q, want 10", fields[6])
	}
}

func TestWriteCSVBlanksUnavailableMonitorFields(t *testing.T) {
	var agg stats.Aggregator
	final := agg.Final(time.Second)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, Params{}, final, Samples{}); err != nil {
		t.Fatal(err)
	}
	fields := strings.Split(strings.TrimRight(buf.String(), "\n"), ",")
	clientCPUIdx := indexOf(CSVColumns, "client_cpu_pct")
	if fields[clientCPUIdx] != "" {
		t.Fatalf("client_cpu_pct should be blank when unavailable, got %q", fields[clientCPUIdx])
	}
}

func TestWriteCSVFillsAvailableMonitorFields(t *testing.T) {
	var agg stats.Aggregator
	final := agg.Final(time.Second)

	s := Samples{HaveServer: true, ServerCPU: 0.5}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Params{}, final, s); err != nil {
		t.Fatal(err)
	}
	fields := strings.Split(strings.TrimRight(buf.String(), "\n"), ",")
	serverCPUIdx := indexOf(CSVColumns, "server_cpu_pct")
	if fields[serverCPUIdx] != "50.00" {
		t.Fatalf("server_cpu_pct = %q, want 50.00", fields[serverCPUIdx])
	}
}

func TestWriteHumanIncludesMonitorSectionOnlyWhenPresent(t *testing.T) {
	var agg stats.Aggregator
	final := agg.Final(time.Second)

	var buf bytes.Buffer
	WriteHuman(&buf, Params{}, final, Samples{})
	if strings.Contains(buf.String(), "Monitor:") {
		t.Fatalf("expected no Monitor section when no samples are available")
	}

	buf.Reset()
	WriteHuman(&buf, Params{}, final, Samples{HaveClient: true, ClientCPU: 0.1})
	if !strings.Contains(buf.String(), "Monitor:") {
		t.Fatalf("expected a Monitor section when client sample is available")
	}
}

func TestWriteIntervalFormat(t *testing.T) {
	var buf bytes.Buffer
	WriteInterval(&buf, 5*time.Second, stats.IntervalReport{Successful: 10, Failed: 1, ThroughputPerSecond: 2.5})
	if !strings.Contains(buf.String(), "ok=10") || !strings.Contains(buf.String(), "fail=1") {
		t.Fatalf("unexpected interval line: %q", buf.String())
	}
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
