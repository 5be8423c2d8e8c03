package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searcher/internal/config"
	"github.com/searcher/internal/health"
	"github.com/searcher/internal/pattern"
	"github.com/searcher/pkg/network"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Job represents a single endpoint request.
type Job struct {
	Name     string
	Endpoint network.Requestable
}

// Result is the outcome of one Job.
type Result struct {
	Job      Job
	Data     []byte
	Err      error
	Duration time.Duration
}

// Handler receives results. It is called concurrently from worker goroutines.
type Handler func(Result)

// Pool manages a pool of worker goroutines sharing one network.Service.
type Pool struct {
	cfg     config.Batch
	service *network.Service
	metrics *health.Metrics
	logger  *zap.Logger
	handle  Handler
	limiter *rate.Limiter
	engine  *pattern.Engine
	jobs    chan Job
	wg      sync.WaitGroup
	active  int64
	done    int64
	skipped int64
	cancel  context.CancelFunc
	closed  sync.Once
}

// NewPool creates a new worker pool. metrics may be nil.
func NewPool(cfg config.Batch, service *network.Service, metrics *health.Metrics, logger *zap.Logger, handle Handler) *Pool {
	limit := rate.Inf
	burst := 1
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		burst = int(cfg.Rate / 10) // Burst of 10% of rate
		if burst < 1 {
			burst = 1
		}
	}

	p := &Pool{
		cfg:     cfg,
		service: service,
		metrics: metrics,
		logger:  logger.Named("worker"),
		handle:  handle,
		limiter: rate.NewLimiter(limit, burst),
		jobs:    make(chan Job, cfg.QueueSize),
	}
	if cfg.Rate > 0 && cfg.Shape.Enabled() {
		p.engine = pattern.NewEngine(cfg.Shape, cfg.Rate)
	}
	return p
}

// Start launches the worker pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	if p.metrics != nil {
		go p.measureRate(ctx)
	}
	if p.engine != nil {
		go p.shapeRate(ctx)
	}

	p.logger.Info("started workers",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Int("queue_size", p.cfg.QueueSize),
		zap.Float64("rate", p.cfg.Rate),
	)
}

// worker is the main worker goroutine.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processJob(ctx, job)
		}
	}
}

// processJob executes a single job.
func (p *Pool) processJob(ctx context.Context, job Job) {
	if err := p.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&p.skipped, 1)
		p.logger.Debug("job skipped", zap.String("endpoint", job.Name), zap.Error(err))
		return
	}

	atomic.AddInt64(&p.active, 1)
	if p.metrics != nil {
		p.metrics.IncRequestsInFlight()
	}
	defer func() {
		atomic.AddInt64(&p.active, -1)
		if p.metrics != nil {
			p.metrics.DecRequestsInFlight()
		}
	}()

	start := time.Now()
	data, err := p.service.Do(ctx, job.Endpoint)
	res := Result{Job: job, Data: data, Err: err, Duration: time.Since(start)}

	if p.metrics != nil {
		p.metrics.RecordRequest(job.Name, data, err, res.Duration.Seconds())
	}

	if err != nil {
		p.logger.Debug("request failed",
			zap.String("endpoint", job.Name),
			zap.String("outcome", health.Outcome(err)),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
	}

	atomic.AddInt64(&p.done, 1)
	if p.handle != nil {
		p.handle(res)
	}
}

// measureRate periodically publishes completed requests per second.
func (p *Pool) measureRate(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := atomic.LoadInt64(&p.done)
			p.metrics.SetCurrentRate(float64(current - last))
			p.metrics.SetQueuedRequests(len(p.jobs))
			last = current
		}
	}
}

// shapeRate moves the limiter to the pattern engine's target rate every tick.
func (p *Pool) shapeRate(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Shape.Tick)
	defer ticker.Stop()

	var spiking bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target := p.engine.Rate()
			p.limiter.SetLimit(rate.Limit(target))
			if p.metrics != nil {
				p.metrics.SetTargetRate(target)
			}

			if now := p.engine.IsSpiking(); now != spiking {
				spiking = now
				p.logger.Debug("rate spike",
					zap.Bool("active", now),
					zap.Float64("target_rate", target),
					zap.Duration("next_in", p.engine.NextSpikeIn()),
				)
			}
		}
	}
}

// Limit returns the limiter's current rate.
func (p *Pool) Limit() float64 {
	return float64(p.limiter.Limit())
}

// Spiking reports whether the traffic shape is in a rate spike.
func (p *Pool) Spiking() bool {
	return p.engine != nil && p.engine.IsSpiking()
}

// NextSpikeIn returns the time until the next rate spike. It is 0 during a
// spike and when spikes are off.
func (p *Pool) NextSpikeIn() time.Duration {
	if !p.SpikesEnabled() {
		return 0
	}
	return p.engine.NextSpikeIn()
}

// SpikesEnabled reports whether the pool's rate follows a spike train.
func (p *Pool) SpikesEnabled() bool {
	return p.engine != nil && p.cfg.Shape.Spikes.Enabled
}

// Submit adds a job to the queue without blocking. It returns false when
// the queue is full.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		if p.metrics != nil {
			p.metrics.SetQueuedRequests(len(p.jobs))
		}
		return true
	default:
		return false
	}
}

// SubmitWait adds a job to the queue, blocking until there is room or ctx
// is done.
func (p *Pool) SubmitWait(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of requests currently in flight.
func (p *Pool) Active() int {
	return int(atomic.LoadInt64(&p.active))
}

// Completed returns the number of jobs that produced a result.
func (p *Pool) Completed() int {
	return int(atomic.LoadInt64(&p.done))
}

// Skipped returns the number of jobs dropped because the pool was stopped
// while they waited for the rate limiter.
func (p *Pool) Skipped() int {
	return int(atomic.LoadInt64(&p.skipped))
}

// QueueSize returns the current queue length.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// Wait closes the queue and blocks until every queued job has finished.
// No jobs may be submitted afterwards.
func (p *Pool) Wait() {
	p.closed.Do(func() { close(p.jobs) })
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("all workers stopped", zap.Int("completed", p.Completed()), zap.Int("skipped", p.Skipped()))
}

// Stop cancels in-flight work and waits for the workers to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.Wait()
}
