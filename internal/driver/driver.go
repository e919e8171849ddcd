// Package driver is the top-level sequencer (C8): it spawns workers, runs
// a warm-up phase whose stats are discarded, runs the measured phase while
// sampling interval throughput, then stops every worker and produces the
// final report.
package driver

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loadkit/loadkit/internal/monitor"
	"github.com/loadkit/loadkit/internal/report"
	"github.com/loadkit/loadkit/internal/stats"
	"github.com/loadkit/loadkit/internal/worker"
)

// Config is everything the driver needs to run one load test.
type Config struct {
	NumWorkers           int
	ConnectionsPerWorker []int // len == NumWorkers; cliconfig puts any remainder on the first workers
	Duration             time.Duration
	WarmUp               time.Duration
	ReportInterval       time.Duration
	StopTimeout          time.Duration

	// WorkerTemplate supplies every field except Index, Connections and
	// Stats, which the driver fills in per worker.
	WorkerTemplate worker.Config

	IntervalWriter io.Writer // progress lines; nil disables interval output

	MonitorAddrs []string // 0, 1 or 2 entries: client, server[, server2]
}

// Driver owns the live workers for one run.
type Driver struct {
	cfg     Config
	log     *logrus.Entry
	workers []*worker.Worker
	boxes   []*stats.Box
}

// New constructs a Driver. Connections must be assigned in cfg before
// calling Run.
func New(cfg Config, log *logrus.Entry) *Driver {
	return &Driver{cfg: cfg, log: log}
}

// Run executes the full warm-up/measure/cool-down sequence and returns the
// aggregated final report. It blocks until the run completes or ctx is
// cancelled.
func (d *Driver) Run(ctx context.Context) (stats.FinalReport, error) {
	total := 0
	for _, n := range d.cfg.ConnectionsPerWorker {
		total += n
	}
	if err := raiseFileLimit(total * 2); err != nil {
		return stats.FinalReport{}, err
	}

	d.boxes = make([]*stats.Box, d.cfg.NumWorkers)
	d.workers = make([]*worker.Worker, d.cfg.NumWorkers)
	stopChs := make([]chan struct{}, d.cfg.NumWorkers)
	var wg sync.WaitGroup

	for i := 0; i < d.cfg.NumWorkers; i++ {
		box := stats.NewBox()
		d.boxes[i] = box

		wc := d.cfg.WorkerTemplate
		wc.Index = i
		wc.Connections = d.cfg.ConnectionsPerWorker[i]
		wc.Stats = box

		w := worker.New(&wc, d.log)
		d.workers[i] = w
		stopChs[i] = make(chan struct{})

		wg.Add(1)
		go func(w *worker.Worker, stop chan struct{}) {
			defer wg.Done()
			if err := w.Run(stop); err != nil {
				d.log.WithError(err).Warn("worker exited with error")
			}
		}(w, stopChs[i])
	}

	if d.cfg.WarmUp > 0 {
		d.sleepOrCancel(ctx, d.cfg.WarmUp)
		for _, box := range d.boxes {
			box.Swap() // discard warm-up activity
		}
	}

	agg := &stats.Aggregator{}
	runStart := time.Now()
	if d.cfg.WorkerTemplate.OneShot {
		// Each connection issues exactly one request and closes itself, so
		// there is nothing to sleep for: join the workers the moment they
		// finish instead of running them for the full configured duration.
		d.joinWorkers(ctx, &wg)
	} else {
		d.measure(ctx, agg, runStart)
	}
	elapsed := time.Since(runStart)

	for _, stop := range stopChs {
		close(stop)
	}
	d.waitWithTimeout(&wg, d.cfg.StopTimeout)

	for _, box := range d.boxes {
		agg.Add(box.Swap())
	}

	return agg.Final(elapsed), nil
}

func (d *Driver) measure(ctx context.Context, agg *stats.Aggregator, runStart time.Time) {
	deadline := runStart.Add(d.cfg.Duration)
	interval := d.cfg.ReportInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, box := range d.boxes {
				agg.Add(box.Swap())
			}
			if d.cfg.IntervalWriter != nil {
				report.WriteInterval(d.cfg.IntervalWriter, now.Sub(runStart), agg.Interval(now.Sub(runStart)))
			}
			if !now.Before(deadline) {
				return
			}
		}
	}
}

// joinWorkers blocks until every worker's Run has returned on its own (the
// OneShot case, where Worker.Run exits once all its connections reach
// StateClosed) or ctx is cancelled. Mirrors apib's JustOnce path, which
// starts its one IO thread and immediately Join()s it rather than sleeping
// for the configured run duration.
func (d *Driver) joinWorkers(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (d *Driver) sleepOrCancel(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (d *Driver) waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		d.log.Warn("stop timeout elapsed; some workers may still be shutting down")
	}
}

// SampleMonitors polls the configured external monitor agents once and
// fills in a report.Samples; unreachable or unconfigured agents leave their
// Have* flag false.
func SampleMonitors(addrs []string) report.Samples {
	var s report.Samples
	if len(addrs) > 0 {
		s.HaveClient = true
		if c := monitor.Dial(addrs[0]); c.Available() {
			if v, ok := c.CPU(); ok {
				s.ClientCPU = v
			}
			if v, ok := c.Mem(); ok {
				s.ClientMem = v
			}
			c.Close()
		} else {
			s.HaveClient = false
		}
	}
	if len(addrs) > 1 {
		s.HaveServer = true
		if c := monitor.Dial(addrs[1]); c.Available() {
			if v, ok := c.CPU(); ok {
				s.ServerCPU = v
			}
			if v, ok := c.Mem(); ok {
				s.ServerMem = v
			}
			c.Close()
		} else {
			s.HaveServer = false
		}
	}
	if len(addrs) > 2 {
		s.HaveServer2 = true
		if c := monitor.Dial(addrs[2]); c.Available() {
			if v, ok := c.CPU(); ok {
				s.Server2CPU = v
			}
			if v, ok := c.Mem(); ok {
				s.Server2Mem = v
			}
			c.Close()
		} else {
			s.HaveServer2 = false
		}
	}
	return s
}
