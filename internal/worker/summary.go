package worker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/searcher/internal/health"
	"github.com/searcher/pkg/network"
)

// Summary aggregates results of a batch run. It is safe for concurrent use
// and its Add method can be passed to NewPool as the Handler.
type Summary struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	outcomes map[string]int
	statuses map[int]int
	bytes    int64
}

// NewSummary creates an empty summary tracking latencies from 1µs to 1m.
func NewSummary() *Summary {
	return &Summary{
		hist:     hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
		outcomes: make(map[string]int),
		statuses: make(map[int]int),
	}
}

// Add records one result.
func (s *Summary) Add(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := r.Duration.Microseconds()
	if us < 1 {
		us = 1
	}
	// values above the trackable range are clamped rather than dropped
	if us > s.hist.HighestTrackableValue() {
		us = s.hist.HighestTrackableValue()
	}
	s.hist.RecordValue(us)

	s.outcomes[health.Outcome(r.Err)]++
	if code := statusCode(r.Err); code != 0 {
		s.statuses[code]++
	}
	s.bytes += int64(len(r.Data))
}

// Total returns the number of recorded results.
func (s *Summary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.hist.TotalCount())
}

// Outcomes returns a copy of the per-outcome counts.
func (s *Summary) Outcomes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = v
	}
	return out
}

// StatusCodes returns the HTTP statuses seen on http-error results, sorted.
func (s *Summary) StatusCodes() []StatusCount {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StatusCount, 0, len(s.statuses))
	for code, n := range s.statuses {
		out = append(out, StatusCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// StatusCount is the number of http-error results with one status code.
type StatusCount struct {
	Code  int
	Count int
}

// Bytes returns the total body bytes of successful results.
func (s *Summary) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Percentile returns the latency at percentile q (0-100).
func (s *Summary) Percentile(q float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.hist.ValueAtQuantile(q)) * time.Microsecond
}

// Mean returns the mean latency.
func (s *Summary) Mean() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.hist.Mean() * float64(time.Microsecond))
}

func statusCode(err error) int {
	var nerr *network.Error
	if errors.As(err, &nerr) && nerr.Kind == network.KindHTTP {
		return nerr.StatusCode
	}
	return 0
}
