// Package tui is a terminal chat client for a running ragd server.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docrag/api/internal/rag"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	chatBox     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type message struct {
	role    string
	content string
	sources []rag.SourceChunk
}

type answerMsg struct {
	answer  string
	sources []rag.SourceChunk
	err     error
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	client   *apiClient
	input    textinput.Model
	viewport viewport.Model
	messages []message
	status   string
	waiting  bool
	ready    bool
}

// New creates a chat model against the server at baseURL.
func New(baseURL string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		client:   newAPIClient(baseURL),
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Connected to " + baseURL,
	}
}

// Init starts the input cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := chatBox.GetFrameSize()
		height := msg.Height - frame - 4 // title, input, status, spacer
		if height < 3 {
			height = 3
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = height
		m.viewport.SetContent(m.renderMessages())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter && !m.waiting {
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = "Thinking..."
			m.messages = append(m.messages, message{role: "user", content: query})
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
			return m, m.ask(query)
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = errorStyle.Render("Error: " + msg.err.Error())
		} else {
			m.status = fmt.Sprintf("%d chunks retrieved", len(msg.sources))
			m.messages = append(m.messages, message{
				role:    "assistant",
				content: msg.answer,
				sources: msg.sources,
			})
		}
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) ask(query string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Query(query, 0)
		if err != nil {
			return answerMsg{err: err}
		}
		return answerMsg{answer: resp.Answer, sources: resp.Sources}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := titleStyle.Render("ragd chat")
	body := chatBox.Render(m.viewport.View())
	status := statusStyle.Render(m.status)
	return title + "\n" + body + "\n" + m.input.View() + "\n" + status
}

func (m Model) renderMessages() string {
	var lines []string
	for _, msg := range m.messages {
		if msg.role == "user" {
			lines = append(lines, userStyle.Render("You: ")+msg.content)
		} else {
			lines = append(lines, "AI: "+msg.content)
			if len(msg.sources) > 0 {
				lines = append(lines, sourceStyle.Render("Sources:"))
				for _, src := range msg.sources {
					lines = append(lines, sourceStyle.Render(
						fmt.Sprintf("  - %s (page %d, score %.4f)", src.DocID, src.Page, src.Score)))
				}
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
