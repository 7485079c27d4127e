// Package tui implements the interactive terminal chat view.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/parley-ai/chat-platform/internal/client"
	"github.com/parley-ai/chat-platform/internal/model"
)

const (
	defaultWidth         = 100
	defaultHeight        = 40
	inputCharLimit       = 4000
	inputHeightReserved  = 2
	statusHeightReserved = 3
	minContentHeight     = 10
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// ChatProgram encapsulates the chat TUI program.
type ChatProgram struct {
	store *client.Store
}

// NewChatProgram creates a chat program over the given store.
func NewChatProgram(store *client.Store) *ChatProgram {
	return &ChatProgram{store: store}
}

// Run starts the chat TUI and blocks until the user exits.
func (p *ChatProgram) Run() error {
	program := tea.NewProgram(initialModel(p.store), tea.WithAltScreen())

	// The store mutates during streaming; each change repaints the view.
	p.store.OnChange(func() {
		program.Send(storeChangedMsg{})
	})

	_, err := program.Run()
	return err
}

type (
	storeChangedMsg struct{}
	sendDoneMsg     struct{ err error }
)

// chatModel is the Bubble Tea model for the chat view. All chat state
// lives in the store; the model only holds UI components.
type chatModel struct {
	store *client.Store

	input       textinput.Model
	contentView viewport.Model

	err error

	width  int
	height int
}

func initialModel(store *client.Store) chatModel {
	input := textinput.New()
	input.Placeholder = ""
	input.Focus()
	input.CharLimit = inputCharLimit
	input.Width = defaultWidth - 3
	input.Prompt = ""

	contentView := viewport.New(defaultWidth, defaultHeight-inputHeightReserved-statusHeightReserved)

	m := chatModel{
		store:       store,
		input:       input,
		contentView: contentView,
		width:       defaultWidth,
		height:      defaultHeight,
	}
	m.refreshContent()
	return m
}

// Init implements tea.Model.
func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyPress(msg)...)

	case tea.WindowSizeMsg:
		m.handleWindowResize(msg)

	case storeChangedMsg:
		m.refreshContent()

	case sendDoneMsg:
		// Stream failures already surface as the placeholder error text;
		// only local refusals are worth a separate line.
		if errors.Is(msg.err, client.ErrBusy) || errors.Is(msg.err, client.ErrNoActiveChat) {
			m.err = msg.err
		}
		m.refreshContent()
	}

	if !m.store.Busy() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *chatModel) handleKeyPress(msg tea.KeyMsg) []tea.Cmd {
	var cmds []tea.Cmd

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		cmds = append(cmds, tea.Quit)

	case tea.KeyEnter:
		if !m.store.Busy() {
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.input.Reset()
				m.err = nil
				cmds = append(cmds, m.sendCmd(text))
			}
		}

	case tea.KeyUp:
		m.contentView.LineUp(1)

	case tea.KeyDown:
		m.contentView.LineDown(1)

	case tea.KeyPgUp:
		m.contentView.ViewUp()

	case tea.KeyPgDown:
		m.contentView.ViewDown()
	}

	return cmds
}

func (m *chatModel) handleWindowResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	contentHeight := msg.Height - inputHeightReserved - statusHeightReserved
	if contentHeight < minContentHeight {
		contentHeight = minContentHeight
	}

	m.contentView.Width = msg.Width
	m.contentView.Height = contentHeight
	m.input.Width = msg.Width - 3

	m.refreshContent()
}

// sendCmd runs the blocking send off the UI loop. Store change
// notifications repaint the transcript while deltas arrive.
func (m *chatModel) sendCmd(text string) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		err := store.Send(context.Background(), text)
		return sendDoneMsg{err: err}
	}
}

// refreshContent rebuilds the transcript from store state.
func (m *chatModel) refreshContent() {
	var b strings.Builder

	for _, msg := range m.store.Messages() {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString("\n")
			b.WriteString(boldStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		case model.RoleAssistant:
			b.WriteString("\n")
			b.WriteString(accentStyle.Render("Assistant"))
			b.WriteString("\n")
			if msg.Content == "" {
				b.WriteString(dimStyle.Render("…"))
			} else {
				b.WriteString(msg.Content)
			}
			b.WriteString("\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString("\n")
	}

	display := b.String()
	if m.width > 10 {
		display = lipgloss.NewStyle().Width(m.width).Render(display)
	}

	m.contentView.SetContent(display)
	m.contentView.GotoBottom()
}

func (m chatModel) statusLine() string {
	title := model.DefaultTitle
	activeID := m.store.ActiveChatID()
	for _, c := range m.store.Chats() {
		if c.ID == activeID {
			title = c.Title
			break
		}
	}

	status := dimStyle.Render(title)
	if m.store.Busy() {
		status += dimStyle.Render(" • generating...")
	}
	return status
}

// View implements tea.Model.
func (m chatModel) View() string {
	content := m.contentView.View()

	var inputView string
	if m.store.Busy() {
		inputView = dimStyle.Render("> waiting for reply...")
	} else {
		inputView = promptStyle.Render("> ") + m.input.View()
	}

	help := ""
	if !m.store.Busy() {
		help = dimStyle.Render("Enter send • ↑↓ scroll • Esc quit")
	}

	parts := []string{m.statusLine(), "", content, "", inputView}
	if help != "" {
		parts = append(parts, help)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
