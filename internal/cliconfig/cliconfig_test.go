package cliconfig

import (
	"testing"

	"github.com/spf13/pflag"

	"github.com/loadkit/loadkit/internal/worker"
)

func TestParseTargetURLVsFile(t *testing.T) {
	target, err := ParseTarget("http://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if target.URL != "http://example.com/" || target.FilePath != "" {
		t.Fatalf("unexpected target: %+v", target)
	}

	target, err = ParseTarget("@urls.txt")
	if err != nil {
		t.Fatal(err)
	}
	if target.FilePath != "urls.txt" || target.URL != "" {
		t.Fatalf("unexpected target: %+v", target)
	}

	if _, err := ParseTarget(""); err == nil {
		t.Fatal("expected an error for an empty target")
	}
}

func TestBuildDefaultsMethodToGETWithoutInputFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := Register(fs)
	if err := fs.Parse([]string{}); err != nil {
		t.Fatal(err)
	}
	dcfg, _, err := f.Build(worker.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if dcfg.WorkerTemplate.Method != "GET" {
		t.Fatalf("default method = %q, want GET", dcfg.WorkerTemplate.Method)
	}
}

func TestBuildSplitsConnectionsEvenly(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := Register(fs)
	if err := fs.Parse([]string{"-c", "10", "-K", "3"}); err != nil {
		t.Fatal(err)
	}
	dcfg, rp, err := f.Build(worker.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if rp.Connections != 10 || rp.Threads != 3 {
		t.Fatalf("unexpected params: %+v", rp)
	}
	total := 0
	for _, n := range dcfg.ConnectionsPerWorker {
		total += n
	}
	if total != 10 {
		t.Fatalf("connections per worker sum to %d, want 10: %v", total, dcfg.ConnectionsPerWorker)
	}
	if len(dcfg.ConnectionsPerWorker) != 3 {
		t.Fatalf("expected 3 worker buckets, got %d", len(dcfg.ConnectionsPerWorker))
	}
}

func TestBuildMarksPresetHeadersFromDashH(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := Register(fs)
	if err := fs.Parse([]string{"-H", "Host: override.example.com"}); err != nil {
		t.Fatal(err)
	}
	dcfg, _, err := f.Build(worker.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if dcfg.WorkerTemplate.Preset&worker.PresetHost == 0 {
		t.Fatal("expected PresetHost to be set from an explicit Host header")
	}
}

func TestBuildRejectsMalformedOAuth(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := Register(fs)
	if err := fs.Parse([]string{"-O", "onlyonepart"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.Build(worker.Config{}); err == nil {
		t.Fatal("expected an error for a malformed -O value")
	}
}

func TestBuildAcceptsFourPartOAuth(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := Register(fs)
	if err := fs.Parse([]string{"-O", "ck:cs:at:as"}); err != nil {
		t.Fatal(err)
	}
	dcfg, _, err := f.Build(worker.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if dcfg.WorkerTemplate.OAuth == nil || dcfg.WorkerTemplate.OAuth.AccessToken != "at" {
		t.Fatalf("expected OAuth config with access token, got %+v", dcfg.WorkerTemplate.OAuth)
	}
}

func TestSplitEvenlyDistributesRemainder(t *testing.T) {
	out := splitEvenly(10, 3)
	sum := 0
	for _, v := range out {
		sum += v
	}
	if sum != 10 {
		t.Fatalf("sum = %d, want 10", sum)
	}
	if out[0] != 4 || out[1] != 3 || out[2] != 3 {
		t.Fatalf("unexpected split: %v", out)
	}
}
