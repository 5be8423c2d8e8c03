package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/searcher/internal/config"
	"github.com/searcher/internal/health"
	"github.com/searcher/internal/worker"
	"github.com/searcher/pkg/network"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchRepeat      int
	batchConcurrency int
	batchRate        float64
	batchMetrics     bool
	batchOnly        []string
	batchSpikes      bool
	batchNoise       bool
	batchLive        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Send every configured endpoint concurrently",
	Long: `Run every endpoint from the config file through a worker pool that
shares one request service, then print outcome counts and latency
percentiles.

Examples:
  searcher batch --config searcher.yaml
  searcher batch --repeat 50 --concurrency 16 --rate 100
  searcher batch --only search,thumb --metrics
  searcher batch --repeat 1000 --rate 50 --spikes --noise
  searcher batch --repeat 1000 --rate 50 --spikes --live`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchRepeat, "repeat", "n", 0, "Times to send each endpoint (overrides batch.repeat)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "Worker count (overrides batch.concurrency)")
	batchCmd.Flags().Float64Var(&batchRate, "rate", -1, "Requests per second, 0 = unlimited (overrides batch.rate)")
	batchCmd.Flags().BoolVar(&batchMetrics, "metrics", false, "Serve Prometheus metrics while running")
	batchCmd.Flags().StringSliceVar(&batchOnly, "only", nil, "Only send these endpoints")
	batchCmd.Flags().BoolVar(&batchSpikes, "spikes", false, "Add Poisson rate spikes (requires a rate)")
	batchCmd.Flags().BoolVar(&batchNoise, "noise", false, "Add rate noise (requires a rate)")
	batchCmd.Flags().BoolVar(&batchLive, "live", false, "Show a live progress view while the batch runs")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyBatchFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid batch options: %w", err)
	}

	endpoints, err := selectEndpoints(cfg, batchOnly)
	if err != nil {
		return err
	}

	// The live view owns the terminal, so console logs would tear it.
	console := io.Writer(os.Stderr)
	if batchLive {
		console = io.Discard
	}
	logger, err := newLogger(cfg, console)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := network.NewService(cfg.Network.ServiceConfig(), network.WithSession(cfg.Network.NewSession()))
	defer svc.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := health.NewMetrics(reg)

	if cfg.Metrics.Enabled {
		srv := health.NewServer(cfg.Metrics, reg, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	summary := worker.NewSummary()
	start := time.Now()
	if batchLive {
		err = runJobsLive(ctx, cmd.OutOrStdout(), cfg.Batch, svc, metrics, logger, endpoints, summary)
	} else {
		err = runJobs(ctx, cfg.Batch, svc, metrics, logger, endpoints, summary)
	}
	if err != nil {
		logger.Warn("batch interrupted", zap.Error(err))
	}

	printSummary(cmd.OutOrStdout(), themeFor(cmd.OutOrStdout()), summary, time.Since(start))

	if failed := summary.Total() - summary.Outcomes()[health.OutcomeSuccess]; failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, summary.Total())
	}
	return nil
}

func applyBatchFlags(cfg *config.Config) {
	if batchRepeat > 0 {
		cfg.Batch.Repeat = batchRepeat
	}
	if batchConcurrency > 0 {
		cfg.Batch.Concurrency = batchConcurrency
	}
	if batchRate >= 0 {
		cfg.Batch.Rate = batchRate
	}
	if batchMetrics {
		cfg.Metrics.Enabled = true
	}
	if batchSpikes {
		cfg.Batch.Shape.Spikes.Enabled = true
	}
	if batchNoise {
		cfg.Batch.Shape.Noise.Enabled = true
	}
}

// selectEndpoints returns the configured endpoints, filtered by name.
func selectEndpoints(cfg *config.Config, only []string) ([]config.Endpoint, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured in %s", configPath)
	}
	if len(only) == 0 {
		return cfg.Endpoints, nil
	}

	selected := make([]config.Endpoint, 0, len(only))
	for _, name := range only {
		ep, ok := cfg.FindEndpoint(name)
		if !ok {
			return nil, fmt.Errorf("unknown endpoint %q", name)
		}
		selected = append(selected, ep)
	}
	return selected, nil
}

// runJobs sends every endpoint cfg.Repeat times and waits for all results.
func runJobs(ctx context.Context, cfg config.Batch, svc *network.Service, metrics *health.Metrics,
	logger *zap.Logger, endpoints []config.Endpoint, summary *worker.Summary) error {

	pool := worker.NewPool(cfg, svc, metrics, logger, summary.Add)
	pool.Start(ctx)

	err := feed(ctx, pool, cfg.Repeat, endpoints)
	pool.Wait()
	return err
}

// feed submits every endpoint repeat times, blocking while the queue is full.
func feed(ctx context.Context, pool *worker.Pool, repeat int, endpoints []config.Endpoint) error {
	for i := 0; i < repeat; i++ {
		for _, ep := range endpoints {
			job := worker.Job{Name: ep.Name, Endpoint: ep.Descriptor()}
			if err := pool.SubmitWait(ctx, job); err != nil {
				return err
			}
		}
	}
	return nil
}

// printSummary renders the batch result.
func printSummary(w io.Writer, t theme, s *worker.Summary, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, t.Title.Render(" searcher batch "))
	fmt.Fprintln(w, t.divider(40))

	total := s.Total()
	fmt.Fprintln(w, t.row("requests", 16, t.Value.Render(fmt.Sprintf("%d", total))))
	fmt.Fprintln(w, t.row("elapsed", 16, t.Value.Render(elapsed.Round(time.Millisecond).String())))
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintln(w, t.row("rate", 16, t.Value.Render(fmt.Sprintf("%.1f/s", float64(total)/secs))))
	}
	fmt.Fprintln(w, t.row("bytes", 16, t.Value.Render(fmt.Sprintf("%d", s.Bytes()))))
	fmt.Fprintln(w, t.divider(40))

	outcomes := s.Outcomes()
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		style := t.Error
		if name == health.OutcomeSuccess {
			style = t.Success
		}
		fmt.Fprintln(w, t.row(name, 16, style.Render(fmt.Sprintf("%d", outcomes[name]))))
	}
	for _, sc := range s.StatusCodes() {
		fmt.Fprintln(w, t.row(fmt.Sprintf("  status %d", sc.Code), 16, t.Warning.Render(fmt.Sprintf("%d", sc.Count))))
	}

	if total > 0 {
		fmt.Fprintln(w, t.divider(40))
		fmt.Fprintln(w, t.row("mean", 16, t.Value.Render(s.Mean().Round(time.Microsecond).String())))
		for _, q := range []float64{50, 95, 99} {
			label := fmt.Sprintf("p%.0f", q)
			fmt.Fprintln(w, t.row(label, 16, t.Value.Render(s.Percentile(q).Round(time.Microsecond).String())))
		}
	}
	fmt.Fprintln(w)
}
