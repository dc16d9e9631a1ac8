package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"caterpillar/pkg/relay"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

const (
	roleUser   = "user"
	roleAnswer = "answer"
	roleHelp   = "help"
	roleError  = "error"

	mouseWheelLines = 3
)

type chatMessage struct {
	role     string
	content  string
	duration time.Duration
}

type answerMsg struct {
	answer   string
	err      error
	duration time.Duration
}

type bootTickMsg struct{}

type model struct {
	ctx           context.Context
	askFn         AskFunc
	mode          mode
	oneShotInput  string
	runtime       RuntimeInfo
	theme         theme
	spinner       spinner.Model
	input         textinput.Model
	viewport      viewport.Model
	messages      []chatMessage
	width         int
	height        int
	isReady       bool
	isLoading     bool
	lastErr       string
	booting       bool
	bootStep      int
	followLog     bool
	answeredCount int
}

func newModel(ctx context.Context, askFn AskFunc, runMode mode, question string, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Ask about a substance..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:          ctx,
		askFn:        askFn,
		mode:         runMode,
		oneShotInput: strings.TrimSpace(question),
		runtime:      info,
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     vp,
		width:        100,
		height:       28,
		booting:      runMode == modeInteractive,
		followLog:    true,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && m.oneShotInput != "" {
		m.messages = append(m.messages, chatMessage{role: roleUser, content: m.oneShotInput})
		m.isLoading = true
		m.refreshViewport(false)
		return tea.Batch(m.spinner.Tick, askCmd(m.ctx, m.askFn, m.oneShotInput))
	}
	if m.mode == modeOneShot {
		return tea.Quit
	}

	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if m.mode == modeInteractive && !m.booting {
			m.handleViewportMouse(typed)
		}
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting || m.mode == modeOneShot {
			return m, nil
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}

		if typed.String() == "enter" {
			return m, m.submit()
		}
	}

	if m.mode == modeInteractive {
		m.input, cmd = m.input.Update(msg)
	}

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case answerMsg:
		m.isLoading = false
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.messages = append(m.messages, chatMessage{role: roleError, content: typed.err.Error(), duration: typed.duration})
		} else {
			m.lastErr = ""
			m.answeredCount++
			m.messages = append(m.messages, chatMessage{role: roleAnswer, content: typed.answer, duration: typed.duration})
		}
		m.refreshViewport(false)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
	}

	return m, cmd
}

// submit handles the enter key in interactive mode.
func (m *model) submit() tea.Cmd {
	if m.isLoading {
		return nil
	}

	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return nil
	}
	if isExitCommand(question) {
		return tea.Quit
	}

	m.input.SetValue("")
	m.followLog = true
	m.messages = append(m.messages, chatMessage{role: roleUser, content: question})

	if question == relay.CommandHelp || question == relay.CommandStart {
		m.messages = append(m.messages, chatMessage{role: roleHelp, content: relay.HelpText})
		m.refreshViewport(true)
		return nil
	}

	m.lastErr = ""
	m.isLoading = true
	m.refreshViewport(true)
	return tea.Batch(m.spinner.Tick, askCmd(m.ctx, m.askFn, question))
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("🐛 Ask The Caterpillar")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"endpoint:%s · timeout:%s · answered:%d",
		displayOrNA(m.runtime.Endpoint),
		displayTimeout(m.runtime.Timeout),
		m.answeredCount,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter ask  ·  /help examples  ·  PgUp/PgDn or wheel scroll  ·  Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s asking the caterpillar...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last question failed - try again")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}
	h = max(8, h)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset

	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		sections = append(sections, m.renderMessage(item, m.viewport.Width))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderMessage(item chatMessage, width int) string {
	body := strings.TrimSpace(item.content)

	switch item.role {
	case roleUser:
		return renderCard(m.theme.userTitle.Render(" you "), m.theme.userBox.Width(width).Render(body))
	case roleAnswer:
		if item.duration > 0 {
			body += "\n\n" + m.theme.hint.Render("answered in "+item.duration.Round(time.Millisecond).String())
		}
		return renderCard(m.theme.answerTitle.Render(" caterpillar "), m.theme.answerBox.Width(width).Render(body))
	case roleHelp:
		return renderCard(m.theme.helpTitle.Render(" help "), m.theme.helpBox.Width(width).Render(body))
	default:
		return renderCard(m.theme.errorTitle.Render(" error "), m.theme.errorBox.Width(width).Render(body))
	}
}

func renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) oneShotView() string {
	contentWidth := max(40, m.width-6)
	parts := []string{m.renderMessage(chatMessage{role: roleUser, content: m.oneShotInput}, contentWidth)}

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(fmt.Sprintf("%s asking the caterpillar...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	if len(m.messages) > 1 {
		parts = append(parts, m.renderMessage(m.messages[len(m.messages)-1], contentWidth))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("🐛 Ask The Caterpillar")
	meta := m.theme.headerMeta.Render("waking up")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("ready for questions"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		m.followLog = m.viewport.AtBottom()
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls the transcript on wheel events and reports
// whether msg was consumed.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.SetYOffset(m.viewport.YOffset - mouseWheelLines)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.SetYOffset(m.viewport.YOffset + mouseWheelLines)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] unrolling leaf",
		"[BOOT] lighting hookah",
		"[BOOT] checking dosage charts",
		"[BOOT] listening for questions",
	}
}

func askCmd(ctx context.Context, askFn AskFunc, question string) tea.Cmd {
	return func() tea.Msg {
		startedAt := time.Now()
		answer, err := askFn(ctx, question)
		return answerMsg{answer: answer, err: err, duration: time.Since(startedAt)}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func displayTimeout(timeout time.Duration) string {
	if timeout <= 0 {
		return "none"
	}

	return timeout.String()
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
