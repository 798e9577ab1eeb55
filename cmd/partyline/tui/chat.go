// chat.go is the interactive chat screen, shared by the hosting and joining
// peers. It renders the conversation in a viewport, reads input through a
// text field, and resolves connection requests with a y/n prompt.
package tui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"

	"partyline/internal/event"
	"partyline/internal/node"
)

// MAX_LINES bounds the scrollback kept in memory.
const MAX_LINES = 500

// ------------------------------------------------------ Messages -----------------------------------------------------

type eventMsg struct {
	event event.Event
}

// ------------------------------------------------------- Model -------------------------------------------------------

type model struct {
	node  *node.Node
	title string

	lines []string

	// pending holds unresolved connection requests in arrival order. The
	// front one is prompted for; each Decision is invoked exactly once.
	pending []event.ConnectionRequest

	transferring bool
	percent      float64

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
}

// New creates a new chat program on top of a started node.
func New(n *node.Node) *tea.Program {
	input := textinput.New()
	input.Placeholder = "say something, or: send <path>"
	input.Prompt = "> "
	input.Focus()

	s := spinner.New()
	s.Spinner = WaitingSpinner
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ELEMENT_COLOR))

	title := "joined the party"
	if n.Hosting() {
		title = fmt.Sprintf("hosting on %s (ctrl+y copies the join command)", n.Addr())
	}

	m := model{
		node:    n,
		title:   title,
		input:   input,
		spinner: s,
	}
	return tea.NewProgram(m)
}

// Run starts the chat screen and blocks until the user quits.
func Run(n *node.Node) error {
	if _, err := New(n).Run(); err != nil {
		return errors.Wrap(err, "running tui")
	}
	fmt.Println("")
	return nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.node))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.handleEvent(msg.event)
		m.refreshViewport()
		return m, waitForEvent(m.node)

	case tea.KeyMsg:
		for _, key := range QuitKeys {
			if msg.String() == key {
				for _, pending := range m.pending {
					pending.Decision(false)
				}
				m.node.Stop()
				return m, tea.Quit
			}
		}
		if len(m.pending) > 0 {
			return m.resolvePending(msg)
		}
		if msg.String() == "ctrl+y" && m.node.Hosting() {
			if err := clipboard.WriteAll(fmt.Sprintf("partyline join %s", m.node.Addr())); err != nil {
				m.append(ErrorText(fmt.Sprintf("could not copy to clipboard: %v", err)))
			} else {
				m.append(CheckText("join command copied to clipboard"))
			}
			m.refreshViewport()
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			m.submit()
			m.refreshViewport()
			m.input.Reset()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chrome := 6 // title, separator, input, help and spacing
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2*PADDING, max(msg.Height-chrome, 3))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2*PADDING
			m.viewport.Height = max(msg.Height-chrome, 3)
		}
		m.input.Width = msg.Width - 2*PADDING - len(m.input.Prompt)
		m.refreshViewport()
		return m, nil

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m model) View() string {
	title := runewidth.Truncate(m.title, max(m.width-2*PADDING, 10), "…")

	var b strings.Builder
	b.WriteString("\n" + PadText + BoldText("partyline") + " " + InfoStyle(title) + "\n")
	b.WriteString(PadText + HelpStyle(strings.Repeat("─", min(m.viewportWidth(), MAX_WIDTH))) + "\n")
	if m.ready {
		b.WriteString(m.viewport.View() + "\n")
	}
	if m.transferring {
		b.WriteString(PadText + m.spinner.View() + Progressbar.ViewAs(m.percent) + "\n")
	}
	if len(m.pending) > 0 {
		who := m.pending[0].Username
		if who == "" {
			who = m.pending[0].Addr
		}
		prompt := fmt.Sprintf("%s wants to join (y/n)", who)
		if waiting := len(m.pending) - 1; waiting > 0 {
			prompt += fmt.Sprintf(" (%d more waiting)", waiting)
		}
		b.WriteString(PadText + BoldText(prompt) + "\n")
	} else {
		b.WriteString(PadText + m.input.View() + "\n")
	}
	b.WriteString(PadText + HelpStyle("send <path> shares a file or folder ") + QuitCommandsHelpText + "\n")
	return b.String()
}

// ------------------------------------------------------ Commands -----------------------------------------------------

func waitForEvent(n *node.Node) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{event: <-n.Events()}
	}
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

func (m *model) handleEvent(e event.Event) {
	switch e := e.(type) {
	case event.Chat:
		m.append(e.Text)
	case event.Log:
		m.append(ItalicText(e.Text))
	case event.Error:
		m.append(ErrorText(e.Err.Error()))
	case event.ConnectionRequest:
		m.pending = append(m.pending, e)
	case event.HostStarted:
		m.append(CheckText(fmt.Sprintf("listening on %s", e.Addr)))
	case event.Connected:
		m.append(CheckText(fmt.Sprintf("connected to %s", e.Addr)))
	case event.Progress:
		m.transferring = true
		if e.TotalBytes > 0 {
			m.percent = float64(e.BytesSent) / float64(e.TotalBytes)
		} else {
			m.percent = 1
		}
		if e.BytesSent >= e.TotalBytes && e.FilesSent >= e.TotalFiles && e.TotalFiles > 0 {
			m.transferring = false
		}
	}
}

func (m model) resolvePending(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.pending[0].Decision(true)
		m.pending = m.pending[1:]
	case "n", "N":
		m.pending[0].Decision(false)
		m.append(ItalicText("connection denied"))
		m.pending = m.pending[1:]
		m.refreshViewport()
	}
	return m, nil
}

func (m *model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	if path, ok := strings.CutPrefix(text, "send "); ok {
		path = strings.TrimSpace(path)
		m.append(ItalicText(fmt.Sprintf("sending %s", path)))
		m.node.SendPath(path)
		return
	}
	if err := m.node.SendText(text); err != nil {
		m.append(ErrorText(err.Error()))
		return
	}
	if !m.node.Hosting() {
		// The host never echoes a line back to its author.
		m.append(ItalicText("you: ") + text)
	}
}

func (m *model) append(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > MAX_LINES {
		m.lines = m.lines[len(m.lines)-MAX_LINES:]
	}
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	padded := make([]string, len(m.lines))
	for i, line := range m.lines {
		padded[i] = PadText + line
	}
	m.viewport.SetContent(strings.Join(padded, "\n"))
	m.viewport.GotoBottom()
}

func (m model) viewportWidth() int {
	if m.width == 0 {
		return MAX_WIDTH
	}
	return m.width - 2*PADDING
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
