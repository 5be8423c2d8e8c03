package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/searcher/internal/config"
	"github.com/searcher/internal/worker"
	"github.com/searcher/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStats struct {
	active, completed, skipped, queued int
	limit                              float64
	spikes, spiking                    bool
	nextSpike                          time.Duration
}

func (f *fakeStats) Active() int                { return f.active }
func (f *fakeStats) Completed() int             { return f.completed }
func (f *fakeStats) Skipped() int               { return f.skipped }
func (f *fakeStats) QueueSize() int             { return f.queued }
func (f *fakeStats) Limit() float64             { return f.limit }
func (f *fakeStats) SpikesEnabled() bool        { return f.spikes }
func (f *fakeStats) Spiking() bool              { return f.spiking }
func (f *fakeStats) NextSpikeIn() time.Duration { return f.nextSpike }

func TestBatchModelView(t *testing.T) {
	stats := &fakeStats{active: 3, completed: 5, queued: 2, limit: 20, spikes: true, nextSpike: 4 * time.Second}
	m := newBatchModel(stats, 10, newTheme(false))

	view := m.View()
	assert.Contains(t, view, "searcher batch")
	assert.Contains(t, view, "5/10")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "active     3")
	assert.Contains(t, view, "queued     2")
	assert.Contains(t, view, "limit      20.0/s")
	assert.Contains(t, view, "spike      next in 4s")
	assert.Contains(t, view, "q to stop")
	assert.NotContains(t, view, "skipped")

	stats.spiking = true
	stats.skipped = 1
	view = m.View()
	assert.Contains(t, view, "spike      active")
	assert.Contains(t, view, "skipped    1")
}

func TestBatchModelWithoutSpikes(t *testing.T) {
	stats := &fakeStats{limit: 0}
	m := newBatchModel(stats, 0, newTheme(false))

	view := m.View()
	assert.Contains(t, view, "limit      unlimited")
	assert.NotContains(t, view, "spike")
	assert.Equal(t, 1.0, m.fraction())
}

func TestBatchModelUpdate(t *testing.T) {
	m := newBatchModel(&fakeStats{completed: 20}, 10, newTheme(false))
	assert.NotNil(t, m.Init())
	assert.Equal(t, 1.0, m.fraction())

	next, cmd := m.Update(tickMsg(m.start.Add(2 * time.Second)))
	m = next.(batchModel)
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, m.frame)
	assert.Contains(t, m.View(), "elapsed    2s")

	next, _ = m.Update(tea.WindowSizeMsg{Width: 200, Height: 40})
	m = next.(batchModel)
	assert.Equal(t, 60, m.bar.Width)
	next, _ = m.Update(tea.WindowSizeMsg{Width: 20, Height: 40})
	m = next.(batchModel)
	assert.Equal(t, 10, m.bar.Width)

	next, cmd = m.Update(batchDoneMsg{})
	m = next.(batchModel)
	assert.True(t, m.done)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "done")
	assert.NotContains(t, m.View(), "q to stop")

	_, cmd = m.Update(tickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestBatchModelQuitKey(t *testing.T) {
	m := newBatchModel(&fakeStats{}, 10, newTheme(false))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(batchModel)
	assert.True(t, m.interrupted)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "stopping")

	m = newBatchModel(&fakeStats{}, 10, newTheme(false))
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, next.(batchModel).interrupted)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}

func TestPoolSatisfiesStats(t *testing.T) {
	var _ poolStats = (*worker.Pool)(nil)
}

func TestRunJobsLive(t *testing.T) {
	srv := newSearchServer(t)
	svc := network.NewService(&network.Config{BaseURL: srv.URL})
	defer svc.Close()

	endpoints := []config.Endpoint{
		{Name: "search", Path: "/search", Method: "GET"},
		{Name: "missing", Path: "/missing", Method: "GET"},
	}
	summary := worker.NewSummary()

	var out bytes.Buffer
	err := runJobsLive(context.Background(), &out, config.Batch{Concurrency: 2, QueueSize: 2, Repeat: 3},
		svc, nil, zaptest.NewLogger(t), endpoints, summary, tea.WithInput(nil), tea.WithoutRenderer())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Total())
	assert.Equal(t, map[string]int{"success": 3, "http-error": 3}, summary.Outcomes())
}

func TestRunJobsLiveCancelled(t *testing.T) {
	srv := newSearchServer(t)
	svc := network.NewService(&network.Config{BaseURL: srv.URL})
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runJobsLive(ctx, &out, config.Batch{Concurrency: 1, QueueSize: 1, Repeat: 100},
		svc, nil, zaptest.NewLogger(t), []config.Endpoint{{Name: "search", Path: "/search", Method: "GET"}},
		worker.NewSummary(), tea.WithInput(nil), tea.WithoutRenderer())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
