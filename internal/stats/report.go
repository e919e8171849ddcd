package stats

import (
	"math"
	"sort"
	"time"
)

// Aggregator accumulates Snapshots collected across workers and across
// intervals into running totals, then derives interval and final reports.
type Aggregator struct {
	Successful    int64
	Failed        int64
	BytesRead     int64
	BytesWritten  int64
	SocketsOpened int64
	latencies     []int64
}

// Add folds one worker's snapshot into the running totals.
func (a *Aggregator) Add(s Snapshot) {
	a.Successful += s.Successful
	a.Failed += s.Failed
	a.BytesRead += s.BytesRead
	a.BytesWritten += s.BytesWritten
	a.SocketsOpened += s.SocketsOpened
	a.latencies = append(a.latencies, s.Latencies...)
}

// Reset clears all accumulated totals.
func (a *Aggregator) Reset() {
	a.Successful, a.Failed = 0, 0
	a.BytesRead, a.BytesWritten, a.SocketsOpened = 0, 0, 0
	a.latencies = a.latencies[:0]
}

// Completed is the total number of requests that reached a terminal outcome.
func (a *Aggregator) Completed() int64 { return a.Successful + a.Failed }

// IntervalReport is the driver's periodic progress sample.
type IntervalReport struct {
	Successful         int64
	Failed             int64
	ThroughputPerSecond float64
}

// Interval computes a point-in-time throughput sample without disturbing the
// running totals (the driver calls this after folding in fresh swaps).
func (a *Aggregator) Interval(elapsed time.Duration) IntervalReport {
	secs := elapsed.Seconds()
	var tput float64
	if secs > 0 {
		tput = float64(a.Successful) / secs
	}
	return IntervalReport{Successful: a.Successful, Failed: a.Failed, ThroughputPerSecond: tput}
}

// FinalReport is the end-of-run statistical summary.
type FinalReport struct {
	Elapsed       time.Duration
	Completed     int64
	Successful    int64
	Failed        int64
	SocketsOpened int64

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
	StdDevNs   float64

	// Percentiles[p] holds the latency at integer percentile p, 0..100.
	Percentiles [101]time.Duration

	SendMbps    float64
	ReceiveMbps float64
}

// Final sorts the accumulated latency union once and derives every
// statistic the final report carries: count, min/max, average, standard deviation, and
// percentile(p) = sorted[len*p/100] for p<100, sorted[len-1] for p=100.
func (a *Aggregator) Final(elapsed time.Duration) FinalReport {
	r := FinalReport{
		Elapsed:       elapsed,
		Completed:     a.Completed(),
		Successful:    a.Successful,
		Failed:        a.Failed,
		SocketsOpened: a.SocketsOpened,
	}

	n := len(a.latencies)
	if n > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, v := range sorted {
			sum += v
		}
		avg := float64(sum) / float64(n)

		var sumSq float64
		for _, v := range sorted {
			d := float64(v) - avg
			sumSq += d * d
		}
		r.StdDevNs = math.Sqrt(sumSq / float64(n))

		r.MinLatency = time.Duration(sorted[0])
		r.MaxLatency = time.Duration(sorted[n-1])
		r.AvgLatency = time.Duration(int64(avg))

		for p := 0; p <= 100; p++ {
			r.Percentiles[p] = time.Duration(percentile(sorted, p))
		}
	}

	secs := elapsed.Seconds()
	if secs > 0 {
		r.SendMbps = 8 * float64(a.BytesWritten) / (1048576 * secs)
		r.ReceiveMbps = 8 * float64(a.BytesRead) / (1048576 * secs)
	}
	return r
}

// percentile implements percentile(p) = sorted[(len*p)/100] for p<100, and
// sorted[len-1] for p=100. sorted must already be ascending and non-empty.
func percentile(sorted []int64, p int) int64 {
	n := len(sorted)
	if p >= 100 {
		return sorted[n-1]
	}
	idx := (n * p) / 100
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
