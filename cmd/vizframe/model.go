package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/embedviz/vizframe/internal/session"
	"github.com/embedviz/vizframe/internal/surface"
)

var statusStyle = lipgloss.NewStyle().Faint(true)

// panelMsg carries a freshly painted chart panel into the event loop.
type panelMsg struct {
	content string
}

type startFailedMsg struct {
	err error
}

// model is the terminal frame: one chart panel plus a status line. The
// session paints panels through the engine sink; resizes re-render through
// the session so the size is measured at render time.
type model struct {
	ctx      context.Context
	session  *session.Session
	content  string
	size     surface.Size
	started  bool
	startErr error
}

func newModel(ctx context.Context, sess *session.Session) *model {
	return &model{ctx: ctx, session: sess}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// bottom row is the status line
		m.size = surface.Size{Width: msg.Width, Height: msg.Height - 1}
		size := m.size
		sess := m.session
		if !m.started {
			m.started = true
			ctx := m.ctx
			return m, func() tea.Msg {
				if err := sess.Start(ctx, size); err != nil {
					return startFailedMsg{err: err}
				}
				return nil
			}
		}
		return m, func() tea.Msg {
			sess.Resize(size)
			return nil
		}
	case panelMsg:
		m.content = msg.content
		return m, nil
	case startFailedMsg:
		m.startErr = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *model) View() string {
	if m.startErr != nil {
		return fmt.Sprintf("vizframe: %v\n", m.startErr)
	}
	return m.content + "\n" + m.statusLine()
}

func (m *model) statusLine() string {
	line := "q quit"
	if locator := m.session.Locator(); locator != "" {
		line += "  " + locator
	}
	if m.size.Width > 0 {
		line = ansi.Truncate(line, m.size.Width, "...")
	}
	return statusStyle.Render(line)
}
