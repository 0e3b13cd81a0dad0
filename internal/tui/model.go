package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/store"
)

const (
	defaultFrameInterval = 16 * time.Millisecond
	markReadTimeout      = 10 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// Config controls TUI behavior.
type Config struct {
	FrameInterval time.Duration
	StatusTTL     time.Duration
	TimelineLimit int
}

// Run starts the engine and the interface, and tears both down in order
// when the user quits.
func Run(svc chat.SyncService, cfg Config) error {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaultFrameInterval
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = store.DefaultStatusTTL
	}

	engine := NewEngine(svc, Options{
		TimelineLimit: cfg.TimelineLimit,
		StatusTTL:     cfg.StatusTTL,
	})
	if err := engine.Start(context.Background()); err != nil {
		return err
	}

	model := newModel(engine, cfg)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := program.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// detailMode selects what the right pane shows for the focused room.
type detailMode int

const (
	detailTimeline detailMode = iota
	detailReceipts
)

type model struct {
	engine        *Engine
	frameInterval time.Duration

	width  int
	height int

	detail   detailMode
	markBusy bool
	quitting bool
}

func newModel(engine *Engine, cfg Config) model {
	return model{
		engine:        engine,
		frameInterval: cfg.FrameInterval,
	}
}

// frameMsg paces rendering: the view re-reads the projection every frame,
// whether or not input arrived.
type frameMsg struct{}

type markReadMsg struct {
	kind    chat.ReceiptKind
	updated bool
	err     error
}

type syncToggleMsg struct {
	started bool
	err     error
}

func (m model) frameCmd() tea.Cmd {
	return tea.Tick(m.frameInterval, func(time.Time) tea.Msg {
		return frameMsg{}
	})
}

func (m model) Init() tea.Cmd {
	return m.frameCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case frameMsg:
		return m, m.frameCmd()

	case markReadMsg:
		m.markBusy = false
		switch {
		case msg.err != nil:
			m.engine.SetStatus("Mark as read failed: " + msg.err.Error())
		case msg.updated:
			m.engine.SetStatus(fmt.Sprintf("Receipt sent (%s)", msg.kind))
		default:
			m.engine.SetStatus("Already read")
		}
		return m, nil

	case syncToggleMsg:
		switch {
		case msg.err != nil:
			m.engine.SetStatus("Sync: " + msg.err.Error())
		case msg.started:
			m.engine.SetStatus("Sync started")
		default:
			m.engine.SetStatus("Sync stopped")
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	return m, nil
}

func (m model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "j", "down":
		m.engine.FocusNext()
		return m, nil

	case "k", "up":
		m.engine.FocusPrevious()
		return m, nil

	case "r":
		m.detail = detailReceipts
		return m, nil

	case "t":
		m.detail = detailTimeline
		return m, nil

	case "m":
		// Marking as read is a receipts-view action only.
		if m.detail != detailReceipts {
			return m, nil
		}
		return m.markRead(chat.ReceiptRead)

	case "s":
		return m, func() tea.Msg {
			err := m.engine.StartSync(context.Background())
			return syncToggleMsg{started: true, err: err}
		}

	case "S":
		return m, func() tea.Msg {
			err := m.engine.StopSync(context.Background())
			return syncToggleMsg{started: false, err: err}
		}
	}

	return m, nil
}

func (m model) markRead(kind chat.ReceiptKind) (tea.Model, tea.Cmd) {
	if m.markBusy {
		return m, nil
	}
	if _, ok := m.engine.SelectedRoomID(); !ok {
		m.engine.SetStatus("No room focused")
		return m, nil
	}

	m.markBusy = true
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		updated, err := m.engine.MarkSelectedRead(ctx, kind)
		return markReadMsg{kind: kind, updated: updated, err: err}
	}
}
