package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var clipboardWriteAll = clipboard.WriteAll

type clipboardCopiedMsg struct {
	err error
}

// TokenCounter is satisfied by *tokens.Counter.
type TokenCounter interface {
	CountTranscript(entries []conversation.Entry) (int, error)
}

type ModelOption func(*Model)

func WithTokenCounter(c TokenCounter) ModelOption {
	return func(m *Model) {
		m.counter = c
	}
}

func WithRenderer(r *Renderer) ModelOption {
	return func(m *Model) {
		m.renderer = r
	}
}

func WithTitle(title string) ModelOption {
	return func(m *Model) {
		m.title = title
	}
}

// Model is the full screen chat view.
type Model struct {
	ctx      context.Context
	backend  Backend
	renderer *Renderer
	counter  TokenCounter

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	title   string
	snap    conversation.Snapshot
	tokens  int
	lastErr string
	notice  string
	width   int
	height  int
}

func NewModel(ctx context.Context, backend Backend, options ...ModelOption) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	ti := textinput.New()
	ti.Placeholder = "Ask for a chart…"
	ti.Prompt = "> "
	ti.Focus()

	vp := viewport.New(defaultWidth, 20)

	m := Model{
		ctx:      ctx,
		backend:  backend,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		title:    "plotchat",
		width:    defaultWidth,
		height:   24,
	}
	for _, o := range options {
		o(&m)
	}
	if m.renderer == nil {
		m.renderer = NewRenderer()
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.backend.Interrupt()
			return m, tea.Quit
		case "esc":
			if m.backend.Interrupt() {
				m.notice = "cancelling…"
			}
			return m, nil
		case "ctrl+y":
			return m, m.copyLastReply()
		case "enter":
			return m.submit()
		}

	case TurnSettledMsg:
		m.lastErr = ""
		m.notice = ""
		m.refresh()
		m.input.Focus()
		return m, nil

	case TurnFailedMsg:
		m.notice = ""
		if errors.Is(msg.Err, context.Canceled) {
			m.lastErr = "request cancelled"
		} else {
			m.lastErr = msg.Err.Error()
		}
		m.refresh()
		m.input.Focus()
		return m, nil

	case StreamChangedMsg:
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case clipboardCopiedMsg:
		if msg.err != nil {
			m.lastErr = "copy failed: " + msg.err.Error()
		} else {
			m.notice = "copied last reply to clipboard"
		}
		return m, nil

	case spinner.TickMsg:
		if m.backend.IsFinished() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	if !m.submitting() {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.submitting() {
		return m, nil
	}

	cmd, err := m.backend.Start(m.ctx, m.input.Value())
	if err != nil {
		log.Warn().Err(err).Msg("could not start turn")
		m.lastErr = err.Error()
		return m, nil
	}
	m.input.Reset()
	if cmd == nil {
		return m, nil
	}

	m.lastErr = ""
	m.notice = ""
	m.input.Blur()
	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) copyLastReply() tea.Cmd {
	transcript := m.snap.Transcript
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == conversation.RoleAssistant {
			content := transcript[i].Content
			return func() tea.Msg {
				return clipboardCopiedMsg{err: clipboardWriteAll(content)}
			}
		}
	}
	return nil
}

func (m Model) submitting() bool {
	return m.snap.Phase == conversation.PhaseSubmitting
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.renderer.SetWidth(width)
	m.input.Width = width - lipgloss.Width(m.input.Prompt) - 1

	// header, status bar, input and the separating newlines
	vh := height - 4
	if vh < 1 {
		vh = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vh
}

// refresh pulls the latest snapshot and re-renders the viewport content.
func (m *Model) refresh() {
	prevVersion := m.snap.Version
	m.snap = m.backend.Snapshot()

	if m.counter != nil && (m.snap.Version != prevVersion || m.tokens == 0) {
		n, err := m.counter.CountTranscript(m.snap.Transcript)
		if err != nil {
			log.Debug().Err(err).Msg("could not count transcript tokens")
		} else {
			m.tokens = n
		}
	}

	m.viewport.SetContent(m.renderer.RenderStream(m.snap.Rendered, m.spinner.View()))
}

func (m Model) statusLine() string {
	parts := []string{
		m.snap.Phase.String(),
		fmt.Sprintf("%d turns", m.snap.Turns),
	}
	if m.counter != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", m.tokens))
	}
	line := statusStyle.Render(strings.Join(parts, " · "))
	if m.lastErr != "" {
		line += "  " + errorStyle.Render(m.lastErr)
	} else if m.notice != "" {
		line += "  " + noticeStyle.Render(m.notice)
	}
	return line
}

func (m Model) View() string {
	header := headerStyle.Render(m.title)
	if m.submitting() {
		header += " " + m.spinner.View()
	}
	return header + "\n" + m.viewport.View() + "\n" + m.statusLine() + "\n" + m.input.View()
}
