package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/searcher/internal/config"
	"github.com/searcher/internal/health"
	"github.com/searcher/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

// routeSession answers by request URL path.
type routeSession struct {
	calls int64
	delay time.Duration
}

func (s *routeSession) Do(ctx context.Context, req *network.Request) ([]byte, *network.Response, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	switch req.URL {
	case "https://api.example.com/search":
		return []byte(`{"items":[]}`), &network.Response{StatusCode: 200}, nil
	case "https://api.example.com/missing":
		return []byte("gone"), &network.Response{StatusCode: 404}, &network.StatusError{StatusCode: 404}
	default:
		return nil, nil, errors.New("connection reset")
	}
}

func (s *routeSession) Close() error { return nil }

func newTestService(session network.Session) *network.Service {
	return network.NewService(&network.Config{BaseURL: "https://api.example.com"}, network.WithSession(session))
}

func TestPoolRunsAllJobs(t *testing.T) {
	session := &routeSession{}
	metrics := health.NewMetrics(prometheus.NewRegistry())
	summary := NewSummary()

	pool := NewPool(
		config.Batch{Concurrency: 4, QueueSize: 8},
		newTestService(session),
		metrics,
		zaptest.NewLogger(t),
		summary.Add,
	)
	pool.Start(context.Background())

	jobs := []Job{
		{Name: "search", Endpoint: network.Endpoint{Path: "/search"}},
		{Name: "missing", Endpoint: network.Endpoint{Path: "/missing"}},
		{Name: "broken", Endpoint: network.Endpoint{Path: "/broken"}},
		{Name: "bad", Endpoint: network.Endpoint{Path: "/x", Method: "BREW"}},
	}
	for i := 0; i < 5; i++ {
		for _, job := range jobs {
			require.NoError(t, pool.SubmitWait(context.Background(), job))
		}
	}
	pool.Wait()

	assert.Equal(t, 20, pool.Completed())
	assert.Equal(t, 20, summary.Total())
	assert.Equal(t, int64(15), atomic.LoadInt64(&session.calls))
	assert.Equal(t, map[string]int{
		"success":        5,
		"http-error":     5,
		"generic":        5,
		"url-generation": 5,
	}, summary.Outcomes())
	assert.Equal(t, []StatusCount{{Code: 404, Count: 5}}, summary.StatusCodes())
	assert.Equal(t, int64(5*len(`{"items":[]}`)), summary.Bytes())

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("missing", "http-error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("bad", "url-generation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RequestsInFlight))
}

func TestPoolSubmitRejectsWhenFull(t *testing.T) {
	pool := NewPool(
		config.Batch{Concurrency: 1, QueueSize: 1},
		newTestService(&routeSession{}),
		nil,
		zaptest.NewLogger(t),
		nil,
	)

	job := Job{Name: "search", Endpoint: network.Endpoint{Path: "/search"}}
	assert.True(t, pool.Submit(job))
	assert.False(t, pool.Submit(job))
	assert.Equal(t, 1, pool.QueueSize())

	pool.Start(context.Background())
	pool.Wait()
	assert.Equal(t, 1, pool.Completed())
}

func TestPoolRateLimit(t *testing.T) {
	pool := NewPool(
		config.Batch{Concurrency: 4, QueueSize: 8, Rate: 20},
		newTestService(&routeSession{}),
		nil,
		zaptest.NewLogger(t),
		nil,
	)
	pool.Start(context.Background())

	start := time.Now()
	for i := 0; i < 6; i++ {
		require.True(t, pool.Submit(Job{Name: "search", Endpoint: network.Endpoint{Path: "/search"}}))
	}
	pool.Wait()

	// burst of 2 then 50ms per token
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 6, pool.Completed())
}

func TestPoolStopCancelsInFlight(t *testing.T) {
	session := &routeSession{delay: 5 * time.Second}

	var mu sync.Mutex
	var results []Result
	pool := NewPool(
		config.Batch{Concurrency: 2, QueueSize: 4},
		newTestService(session),
		nil,
		zaptest.NewLogger(t),
		func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	)
	pool.Start(context.Background())

	pool.Submit(Job{Name: "search", Endpoint: network.Endpoint{Path: "/search"}})
	pool.Submit(Job{Name: "search", Endpoint: network.Endpoint{Path: "/search"}})
	require.Eventually(t, func() bool { return pool.Active() == 2 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, network.ErrCancelled)
	}
}

func TestSummaryPercentiles(t *testing.T) {
	s := NewSummary()
	for i := 1; i <= 100; i++ {
		s.Add(Result{Duration: time.Duration(i) * time.Millisecond})
	}
	s.Add(Result{Duration: 2 * time.Hour})

	assert.Equal(t, 101, s.Total())
	assert.InDelta(t, float64(50*time.Millisecond), float64(s.Percentile(50)), float64(2*time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(s.Percentile(98)), float64(2*time.Millisecond))
	assert.LessOrEqual(t, s.Percentile(100), time.Minute+time.Second)
	assert.Greater(t, s.Mean(), time.Duration(0))
	assert.Equal(t, map[string]int{"success": 101}, s.Outcomes())
}

func TestPoolShapesRate(t *testing.T) {
	metrics := health.NewMetrics(prometheus.NewRegistry())
	pool := NewPool(
		config.Batch{
			Concurrency: 1,
			QueueSize:   1,
			Rate:        10,
			Shape: config.Shape{
				Noise:   config.Noise{Enabled: true, Amplitude: 0.5},
				MaxRate: 12,
				Tick:    5 * time.Millisecond,
			},
		},
		newTestService(&routeSession{}),
		metrics,
		zaptest.NewLogger(t),
		nil,
	)
	assert.Equal(t, 10.0, pool.Limit())

	pool.Start(context.Background())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return pool.Limit() != 10.0 && testutil.ToFloat64(metrics.TargetRate) > 0
	}, 2*time.Second, 5*time.Millisecond)

	limit := pool.Limit()
	assert.GreaterOrEqual(t, limit, 5.0)
	assert.LessOrEqual(t, limit, 12.0)

	assert.False(t, pool.SpikesEnabled())
	assert.False(t, pool.Spiking())
	assert.Zero(t, pool.NextSpikeIn())
}

func TestPoolReportsSpikes(t *testing.T) {
	pool := NewPool(
		config.Batch{
			Concurrency: 1,
			QueueSize:   1,
			Rate:        10,
			Shape: config.Shape{
				Spikes: config.Spikes{
					Enabled:     true,
					Factor:      3,
					Lambda:      0.001,
					MinInterval: time.Hour,
					MaxInterval: 2 * time.Hour,
					RampUp:      time.Second,
					RampDown:    time.Second,
				},
				Tick: time.Second,
			},
		},
		newTestService(&routeSession{}),
		nil,
		zaptest.NewLogger(t),
		nil,
	)

	assert.True(t, pool.SpikesEnabled())
	assert.False(t, pool.Spiking())
	next := pool.NextSpikeIn()
	assert.Greater(t, next, 59*time.Minute)
	assert.LessOrEqual(t, next, 2*time.Hour)
}

func TestPoolWithoutRateIgnoresShape(t *testing.T) {
	pool := NewPool(
		config.Batch{
			Concurrency: 1,
			QueueSize:   1,
			Shape:       config.Shape{Noise: config.Noise{Enabled: true, Amplitude: 0.5}},
		},
		newTestService(&routeSession{}),
		nil,
		zaptest.NewLogger(t),
		nil,
	)

	assert.Nil(t, pool.engine)
	assert.Equal(t, float64(rate.Inf), pool.Limit())
	assert.False(t, pool.SpikesEnabled())
	assert.False(t, pool.Spiking())
	assert.Zero(t, pool.NextSpikeIn())
}
