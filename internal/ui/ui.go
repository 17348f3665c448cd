package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/likesync/internal/tasks"
)

const (
	maxBarWidth = 60
	historySize = 8
)

// SyncFunc runs a sync, reporting progress on the given channel.
type SyncFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	sync         SyncFunc
	playlist     string
	dryRun       bool
	progressChan chan tasks.ProgressUpdate
	doneChan     chan syncOutcome
	progress     tasks.ProgressUpdate
	history      []string
	result       *tasks.SyncResult
	err          error
	done         bool
	cancelled    bool
	details      bool
	spinner      spinner.Model
	bar          progress.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model that runs sync for the named playlist once started.
//
// Quitting before the run completes cancels the context passed to sync.
func NewModel(ctx context.Context, playlist string, dryRun bool, sync SyncFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:      ctx,
		cancel:   cancel,
		sync:     sync,
		playlist: playlist,
		dryRun:   dryRun,
		spinner:  s,
		bar:      progress.New(progress.WithGradient("#1DB954", "#1ED760"), progress.WithWidth(maxBarWidth)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Result returns the outcome of the sync once the program has exited.
func (m *Model) Result() (*tasks.SyncResult, error) {
	if m.cancelled && !m.done {
		return nil, context.Canceled
	}
	return m.result, m.err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startSync())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.bar.Width = min(msg.Width-4, maxBarWidth)
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			if !m.done {
				m.cancelled = true
			}
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.details):
			m.details = !m.details
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case Msg:
		return m.handleMsg(msg)
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = update
		m.record(update.Message)
		return m, m.waitForProgress()
	case MsgSyncComplete:
		outcome := msg.data.(syncOutcome)
		m.result, m.err = outcome.result, outcome.err
		m.done = true
		m.cancel()
		return m, nil
	}
	return m, nil
}

func (m *Model) record(message string) {
	if message == "" {
		return
	}
	m.history = append(m.history, message)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

func (m *Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("Syncing liked songs → %s", m.playlist)
	if m.dryRun {
		title += " (dry run)"
	}
	b.WriteString(styles.title.Render(title))
	b.WriteString("\n")

	switch {
	case m.done:
		b.WriteString(m.summaryView())
	default:
		b.WriteString(m.progressView())
	}

	if m.details && len(m.history) > 0 {
		b.WriteString("\n")
		for _, line := range m.history {
			b.WriteString(styles.help.Render("  " + line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) progressView() string {
	var b strings.Builder

	message := m.progress.Message
	if message == "" {
		message = "Starting..."
	}
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), message)

	if isBatchPhase(m.progress.Phase) && m.progress.Total > 0 {
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(float64(m.progress.Step) / float64(m.progress.Total)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) summaryView() string {
	if m.err != nil {
		return styles.err.Render("✗ Sync failed: "+m.err.Error()) + "\n"
	}
	if m.result == nil {
		return styles.warn.Render("Sync finished without a result") + "\n"
	}

	r := m.result
	var b strings.Builder

	heading := "✓ Sync complete"
	if r.DryRun {
		heading = "Dry run complete (no changes made)"
	}
	b.WriteString(styles.ok.Render(heading))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(styles.label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	playlist := r.Playlist.Name
	if r.Playlist.ID != "" {
		playlist = fmt.Sprintf("%s (%s)", r.Playlist.Name, r.Playlist.ID)
	}
	row("Playlist", playlist)
	row("Mode", string(r.Mode))
	row("Liked", fmt.Sprintf("%d", r.LikedCount))
	row("Existing", fmt.Sprintf("%d", r.ExistingCount))

	verb := ""
	if r.DryRun {
		verb = "would be "
	}
	row("Added", fmt.Sprintf("%d %s", r.Added, strings.TrimSpace(verb+"added")))
	row("Removed", fmt.Sprintf("%d %s", r.Removed, strings.TrimSpace(verb+"removed")))

	if r.Skipped > 0 {
		b.WriteString(styles.warn.Render(fmt.Sprintf("%d tracks without an ID were skipped", r.Skipped)))
		b.WriteString("\n")
	}
	return b.String()
}

// startSync runs the sync in a goroutine, closing the progress channel once the outcome is available.
func (m *Model) startSync() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan syncOutcome, 1)

	progress, done := m.progressChan, m.doneChan
	go func() {
		result, err := m.sync(m.ctx, progress)
		done <- syncOutcome{result: result, err: err}
		close(progress)
	}()

	return m.waitForProgress()
}

// waitForProgress returns a command that waits for the next update, or the final outcome.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			outcome := <-done
			return syncCompleteMsg(outcome.result, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

func isBatchPhase(p tasks.Phase) bool {
	return p == tasks.InsertTracks || p == tasks.RemoveTracks
}

var _ tea.Model = (*Model)(nil)
