package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/searcher/internal/config"
	"github.com/searcher/internal/health"
	"github.com/searcher/internal/worker"
	"github.com/searcher/pkg/network"
	"go.uber.org/zap"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// tickMsg redraws the live view.
type tickMsg time.Time

// batchDoneMsg is sent once every job has finished.
type batchDoneMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// poolStats is the part of worker.Pool the live view reads.
type poolStats interface {
	Active() int
	Completed() int
	Skipped() int
	QueueSize() int
	Limit() float64
	SpikesEnabled() bool
	Spiking() bool
	NextSpikeIn() time.Duration
}

// batchModel renders batch progress while the pool works.
type batchModel struct {
	pool  poolStats
	total int
	theme theme
	bar   progress.Model

	start       time.Time
	now         time.Time
	frame       int
	done        bool
	interrupted bool
}

func newBatchModel(pool poolStats, total int, t theme) batchModel {
	now := time.Now()
	return batchModel{
		pool:  pool,
		total: total,
		theme: t,
		bar:   progress.New(progress.WithGradient(string(darkSkyBlue), string(skyBlue)), progress.WithWidth(40)),
		start: now,
		now:   now,
	}
}

func (m batchModel) Init() tea.Cmd {
	return tickCmd()
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-24, 10), 60)
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		m.frame = (m.frame + 1) % len(spinnerFrames)
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case batchDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// fraction is the share of jobs that have finished, skipped ones included.
func (m batchModel) fraction() float64 {
	if m.total <= 0 {
		return 1
	}
	finished := m.pool.Completed() + m.pool.Skipped()
	return min(float64(finished)/float64(m.total), 1)
}

func (m batchModel) View() string {
	t := m.theme
	var b strings.Builder

	status := spinnerFrames[m.frame]
	switch {
	case m.done:
		status = t.Success.Render("done")
	case m.interrupted:
		status = t.Warning.Render("stopping")
	}

	fmt.Fprintf(&b, "%s %s\n\n", t.Title.Render(" searcher batch "), status)
	fmt.Fprintf(&b, "%s %s\n\n", m.bar.ViewAs(m.fraction()),
		t.Value.Render(fmt.Sprintf("%d/%d", m.pool.Completed(), m.total)))

	b.WriteString(t.row("active", 10, t.Value.Render(fmt.Sprintf("%d", m.pool.Active()))) + "\n")
	b.WriteString(t.row("queued", 10, t.Value.Render(fmt.Sprintf("%d", m.pool.QueueSize()))) + "\n")
	if skipped := m.pool.Skipped(); skipped > 0 {
		b.WriteString(t.row("skipped", 10, t.Warning.Render(fmt.Sprintf("%d", skipped))) + "\n")
	}
	b.WriteString(t.row("limit", 10, t.Value.Render(formatLimit(m.pool.Limit()))) + "\n")
	if m.pool.SpikesEnabled() {
		spike := t.Dim.Render("next in " + m.pool.NextSpikeIn().Round(time.Second).String())
		if m.pool.Spiking() {
			spike = t.Warning.Render("active")
		}
		b.WriteString(t.row("spike", 10, spike) + "\n")
	}
	b.WriteString(t.row("elapsed", 10, t.Value.Render(m.now.Sub(m.start).Round(time.Second).String())) + "\n")

	if !m.done {
		b.WriteString("\n" + t.Dim.Render("q to stop") + "\n")
	}
	return b.String()
}

func formatLimit(limit float64) string {
	if limit <= 0 || limit > 1e9 {
		return "unlimited"
	}
	return fmt.Sprintf("%.1f/s", limit)
}

// runJobsLive is runJobs with a live progress view drawn to out. Quitting the
// view stops the batch; jobs not yet sent are dropped.
func runJobsLive(ctx context.Context, out io.Writer, cfg config.Batch, svc *network.Service, metrics *health.Metrics,
	logger *zap.Logger, endpoints []config.Endpoint, summary *worker.Summary, opts ...tea.ProgramOption) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool(cfg, svc, metrics, logger, summary.Add)
	pool.Start(ctx)

	model := newBatchModel(pool, cfg.Repeat*len(endpoints), themeFor(out))
	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithContext(ctx), tea.WithoutSignalHandler()}, opts...)
	prog := tea.NewProgram(model, opts...)

	fed := make(chan error, 1)
	go func() {
		err := feed(ctx, pool, cfg.Repeat, endpoints)
		pool.Wait()
		fed <- err
		prog.Send(batchDoneMsg{})
	}()

	_, err := prog.Run()
	cancel()
	feedErr := <-fed

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("live view: %w", err)
	}
	return feedErr
}
