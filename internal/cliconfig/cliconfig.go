// Package cliconfig turns parsed command-line flags into the structures the
// engine actually runs on: a driver.Config, a report.Params, and the output
// mode (human, CSV line, or CSV header only). Flag parsing itself is a thin
// cobra/pflag adapter; nothing here carries engine logic.
package cliconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/loadkit/loadkit/internal/driver"
	"github.com/loadkit/loadkit/internal/oauth"
	"github.com/loadkit/loadkit/internal/report"
	"github.com/loadkit/loadkit/internal/worker"
)

// Flags holds every raw CLI value, populated by Register/pflag parsing.
type Flags struct {
	Concurrency  int
	IOThreads    int
	Duration     int
	WarmUp       int
	ThinkTimeMs  int
	KeepAlive    int
	One          bool
	Method       string
	InputFile    string
	ContentType  string
	Headers      []string
	UserPass     string
	OAuth        string
	CipherList   string
	Certificate  string
	Verify       bool
	Name         string
	CSVOutput    bool
	HeaderLine   bool
	Monitor      string
	Monitor2     string
	Verbose      bool
}

// Register binds every flag named in the CLI surface table onto fs.
func Register(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.IntVarP(&f.Concurrency, "concurrency", "c", 1, "total connections")
	fs.IntVarP(&f.IOThreads, "iothreads", "K", runtime.NumCPU(), "worker threads")
	fs.IntVarP(&f.Duration, "duration", "d", 60, "measured duration in seconds")
	fs.IntVarP(&f.WarmUp, "warmup", "w", 0, "warm-up duration in seconds")
	fs.IntVarP(&f.ThinkTimeMs, "think-time", "W", 0, "per-connection delay between requests, in ms")
	fs.IntVarP(&f.KeepAlive, "keep-alive", "k", 1, "0 disables keep-alive; non-zero enables it")
	fs.BoolVarP(&f.One, "one", "1", false, "issue exactly one request then exit")
	fs.StringVarP(&f.Method, "method", "x", "", "HTTP verb (default GET, or POST if -f is set)")
	fs.StringVarP(&f.InputFile, "input-file", "f", "", "body payload file")
	fs.StringVarP(&f.ContentType, "content-type", "t", "", "Content-Type header")
	fs.StringArrayVarP(&f.Headers, "header", "H", nil, `raw header line, "Name: Value"`)
	fs.StringVarP(&f.UserPass, "username-password", "u", "", "Basic auth, user:pass")
	fs.StringVarP(&f.OAuth, "oauth", "O", "", "OAuth 1.0a signing, ck:cs[:at:as]")
	fs.StringVarP(&f.CipherList, "cipherlist", "C", "", "TLS cipher list")
	fs.StringVarP(&f.Certificate, "certificate", "F", "", "CA bundle for TLS verification")
	fs.BoolVarP(&f.Verify, "verify", "V", false, "enable TLS peer verification")
	fs.StringVarP(&f.Name, "name", "N", "", "run label for CSV output")
	fs.BoolVarP(&f.CSVOutput, "csv-output", "S", false, "single-line CSV report")
	fs.BoolVarP(&f.HeaderLine, "header-line", "T", false, "emit CSV header and exit")
	fs.StringVarP(&f.Monitor, "monitor", "M", "", "external monitor for the target server, host:port")
	fs.StringVarP(&f.Monitor2, "monitor2", "X", "", "external monitor for a second target server, host:port")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "interval progress lines to stdout and per-failure debug logs to stderr")
	return f
}

// Target is the positional argument, resolved into either a single URL or a
// URL-list file.
type Target struct {
	URL      string
	FilePath string
}

// ParseTarget interprets the final positional argument: "@path" names a
// URL file, anything else is a literal URL.
func ParseTarget(arg string) (Target, error) {
	if arg == "" {
		return Target{}, fmt.Errorf("missing target url")
	}
	if strings.HasPrefix(arg, "@") {
		return Target{FilePath: arg[1:]}, nil
	}
	return Target{URL: arg}, nil
}

// Build turns Flags into a driver.Config and report.Params. wt.Registry is
// expected to already be initialized by the caller (it needs DNS
// resolution, which Build does not perform).
func (f *Flags) Build(wt worker.Config) (driver.Config, report.Params, error) {
	method := f.Method
	if method == "" {
		if f.InputFile != "" {
			method = "POST"
		} else {
			method = "GET"
		}
	}
	wt.Method = method
	wt.KeepAlive = f.KeepAlive != 0
	wt.OneShot = f.One
	wt.ThinkTime = time.Duration(f.ThinkTimeMs) * time.Millisecond

	if f.InputFile != "" {
		body, err := os.ReadFile(f.InputFile)
		if err != nil {
			return driver.Config{}, report.Params{}, fmt.Errorf("reading input file: %w", err)
		}
		wt.Body = body
	}

	if f.ContentType != "" {
		wt.HeaderLines = append(wt.HeaderLines, "Content-Type: "+f.ContentType)
		wt.Preset |= worker.PresetContentType
	}
	for _, h := range f.Headers {
		wt.HeaderLines = append(wt.HeaderLines, h)
		if name, _, ok := strings.Cut(h, ":"); ok {
			markPreset(&wt.Preset, strings.TrimSpace(name))
		}
	}
	if f.UserPass != "" {
		wt.BasicAuth = f.UserPass
	}
	if f.OAuth != "" {
		cfg, err := parseOAuth(f.OAuth)
		if err != nil {
			return driver.Config{}, report.Params{}, err
		}
		wt.OAuth = &cfg
	}

	if f.Certificate != "" || f.CipherList != "" || f.Verify {
		tcfg, err := buildTLSConfig(f)
		if err != nil {
			return driver.Config{}, report.Params{}, err
		}
		wt.TLSConfig = tcfg
	} else {
		wt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	threads := f.IOThreads
	if threads <= 0 {
		threads = 1
	}
	total := f.Concurrency
	if total <= 0 {
		total = 1
	}
	perWorker := splitEvenly(total, threads)

	var monitors []string
	if f.Monitor != "" {
		monitors = append(monitors, f.Monitor)
	}
	if f.Monitor2 != "" {
		monitors = append(monitors, f.Monitor2)
	}

	dcfg := driver.Config{
		NumWorkers:           threads,
		ConnectionsPerWorker: perWorker,
		Duration:             time.Duration(f.Duration) * time.Second,
		WarmUp:               time.Duration(f.WarmUp) * time.Second,
		ReportInterval:       time.Second,
		StopTimeout:          2 * time.Second,
		WorkerTemplate:       wt,
		MonitorAddrs:         monitors,
	}

	rp := report.Params{
		Name:        f.Name,
		Threads:     threads,
		Connections: total,
	}

	return dcfg, rp, nil
}

func markPreset(p *worker.PresetHeader, name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "host":
		*p |= worker.PresetHost
	case "content-type":
		*p |= worker.PresetContentType
	case "content-length":
		*p |= worker.PresetContentLength
	case "authorization":
		*p |= worker.PresetAuthorization
	case "connection":
		*p |= worker.PresetConnection
	case "user-agent":
		*p |= worker.PresetUserAgent
	}
}

// parseOAuth parses "ck:cs[:at:as]" into an oauth.Config.
func parseOAuth(s string) (oauth.Config, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return oauth.Config{}, fmt.Errorf("invalid -O value %q: want ck:cs or ck:cs:at:as", s)
	}
	cfg := oauth.Config{ConsumerKey: parts[0], ConsumerSecret: parts[1]}
	if len(parts) == 4 {
		cfg.AccessToken, cfg.AccessSecret = parts[2], parts[3]
	}
	return cfg, nil
}

func buildTLSConfig(f *Flags) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: !f.Verify}
	if f.Certificate != "" {
		pem, err := os.ReadFile(f.Certificate)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", f.Certificate)
		}
		cfg.RootCAs = pool
	}
	if f.CipherList != "" {
		suites, err := parseCipherList(f.CipherList)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}
	return cfg, nil
}

func parseCipherList(list string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, c := range tls.CipherSuites() {
		byName[c.Name] = c.ID
	}
	var ids []uint16
	for _, name := range strings.Split(list, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown TLS cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// splitEvenly divides total connections across n workers as evenly as
// possible, with any remainder on the first workers.
func splitEvenly(total, n int) []int {
	out := make([]int, n)
	base := total / n
	rem := total % n
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}
