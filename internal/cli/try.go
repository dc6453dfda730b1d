package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/format"
	"github.com/joebot/voxbrief/internal/summary"
)

// ChannelName identifies events coming from the terminal.
const ChannelName = "cli"

// Handler is the bot core as seen by the terminal front end.
type Handler interface {
	Handle(ctx context.Context, ev *bus.Event) []*bus.Reply
}

// TryConfig holds display metadata for the try TUI.
type TryConfig struct {
	Backend string
	Model   string
	// Interim receives status notes (transcribing, processing) while a
	// request runs. May be nil.
	Interim <-chan *bus.Reply
}

var errNoMenu = errors.New("send an audio file first")

var msgSeq atomic.Int64

// --- message types ---

type repliesMsg struct {
	replies []*bus.Reply
}

type interimMsg struct {
	reply *bus.Reply
}

// --- input parsing ---

// parseInput turns a line typed by the user into a bot event. Slash commands
// become text events, a menu number or mode name presses the matching button
// of menu, and anything else is read as the path of an audio file.
func parseInput(input string, menu *format.Menu) (*bus.Event, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if isCommand(input) {
		ev := newEvent(bus.KindText)
		ev.Text = input
		return ev, nil
	}
	if mode, ok := menuChoice(input, menu); ok {
		if menu == nil {
			return nil, errNoMenu
		}
		ev := newEvent(bus.KindButton)
		ev.Token = format.Token(mode, menu.SessionID)
		return ev, nil
	}
	return fileEvent(input)
}

// isCommand tells "/help" apart from an absolute path such as "/tmp/a.ogg".
func isCommand(input string) bool {
	if !strings.HasPrefix(input, "/") {
		return false
	}
	word, _, _ := strings.Cut(input[1:], " ")
	return word != "" && !strings.ContainsAny(word, "/.")
}

// menuChoice resolves "2" or "tasks" to a mode. The number refers to the
// button order of menu, or the default order when there is none yet.
func menuChoice(input string, menu *format.Menu) (summary.Mode, bool) {
	if mode, ok := summary.ParseMode(input); ok {
		return mode, true
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 {
		return "", false
	}
	if menu != nil {
		if n > len(menu.Buttons) {
			return "", false
		}
		mode, _, err := format.ParseToken(menu.Buttons[n-1].Token)
		return mode, err == nil
	}
	if n > len(summary.Modes) {
		return "", false
	}
	return summary.Modes[n-1], true
}

// fileEvent builds an audio event for a local file. The bytes are read lazily
// so the size check happens before the file is loaded.
func fileEvent(path string) (*bus.Event, error) {
	path = expandHome(strings.Trim(path, `"'`))
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open audio file: %s is a directory", path)
	}
	ev := newEvent(bus.KindAudio)
	ev.Audio = &audio.Inbound{
		Filename:     filepath.Base(path),
		DeclaredSize: info.Size(),
		Fetch: func(context.Context) ([]byte, error) {
			return os.ReadFile(path)
		},
	}
	return ev, nil
}

func newEvent(kind bus.Kind) *bus.Event {
	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	return &bus.Event{
		Channel:    ChannelName,
		ChatID:     "terminal",
		UserID:     user,
		MessageID:  strconv.FormatInt(msgSeq.Add(1), 10),
		Kind:       kind,
		ReceivedAt: time.Now(),
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// renderMenu shows the buttons as numbered choices.
func renderMenu(m *format.Menu) string {
	parts := make([]string, len(m.Buttons))
	for i, b := range m.Buttons {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, b.Label)
	}
	return strings.Join(parts, "  ")
}

// --- chat entry ---

type chatEntry struct {
	role    string // "user", "bot", "note", "error"
	content string
	menu    *format.Menu
}

// --- interactive model ---

type tryModel struct {
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history    []chatEntry
	menu       *format.Menu
	waiting    bool
	cancelFunc context.CancelFunc

	handler Handler
	interim <-chan *bus.Reply
	ctx     context.Context

	ready   bool
	width   int
	height  int
	backend string
	model   string
}

func newTryModel(ctx context.Context, h Handler, cfg TryConfig) tryModel {
	ti := textinput.New()
	ti.Placeholder = "Path to an audio file, a menu number, or /help"
	ti.Focus()
	ti.CharLimit = 0
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(Accent)

	return tryModel{
		input:   ti,
		spinner: newSpinner(),
		handler: h,
		interim: cfg.Interim,
		ctx:     ctx,
		backend: cfg.Backend,
		model:   cfg.Model,
	}
}

func newSpinner() spinner.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Accent)
	return sp
}

func (m tryModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitInterim())
}

// waitInterim delivers the next interim note to the update loop.
func (m tryModel) waitInterim() tea.Cmd {
	if m.interim == nil {
		return nil
	}
	ch := m.interim
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return interimMsg{reply: r}
	}
}

func (m tryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// header, divider, divider, input, status bar
		vpHeight := msg.Height - 5
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			input := strings.TrimSpace(m.input.Value())
			if input == "" {
				return m, nil
			}
			if isExitCmd(input) {
				return m, tea.Quit
			}
			m.input.SetValue("")
			return m.submit(input)
		case tea.KeyEsc:
			if m.waiting && m.cancelFunc != nil {
				m.cancelFunc()
				m.cancelFunc = nil
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case interimMsg:
		m.history = append(m.history, chatEntry{role: "note", content: msg.reply.Text()})
		m.refresh()
		return m, m.waitInterim()

	case repliesMsg:
		m.waiting = false
		m.cancelFunc = nil
		focusCmd := m.input.Focus()
		m.addReplies(msg.replies)
		m.refresh()
		return m, focusCmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// submit sends one typed line to the bot.
func (m tryModel) submit(input string) (tea.Model, tea.Cmd) {
	m.history = append(m.history, chatEntry{role: "user", content: input})
	ev, err := parseInput(input, m.menu)
	if err != nil {
		m.history = append(m.history, chatEntry{role: "error", content: err.Error()})
		m.refresh()
		return m, nil
	}
	m.input.Blur()
	m.waiting = true
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelFunc = cancel
	m.refresh()
	h := m.handler
	return m, func() tea.Msg {
		defer cancel()
		return repliesMsg{replies: h.Handle(ctx, ev)}
	}
}

func (m *tryModel) addReplies(replies []*bus.Reply) {
	for _, r := range replies {
		m.history = append(m.history, chatEntry{role: "bot", content: r.Text(), menu: r.Menu})
		if r.Menu != nil {
			m.menu = r.Menu
		}
	}
}

func (m *tryModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m tryModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := TitleStyle.Render(fmt.Sprintf(" %s voxbrief", Logo))
	divider := DimStyle.Render(strings.Repeat("─", m.width))

	var inputLine string
	if m.waiting {
		inputLine = fmt.Sprintf(" %s Working... (Esc to stop)", m.spinner.View())
	} else {
		inputLine = " " + m.input.View()
	}

	return header + "\n" +
		divider + "\n" +
		m.viewport.View() + "\n" +
		divider + "\n" +
		inputLine + "\n" +
		m.renderStatusBar()
}

func (m tryModel) renderHistory() string {
	if len(m.history) == 0 {
		return renderWelcome()
	}

	var sb strings.Builder
	for _, entry := range m.history {
		sb.WriteString("\n")
		switch entry.role {
		case "user":
			sb.WriteString("  " + UserLabel.Render("You") + "\n")
			sb.WriteString("  " + entry.content + "\n")
		case "bot":
			sb.WriteString("  " + BotLabel.Render("voxbrief") + "\n")
			for _, line := range strings.Split(entry.content, "\n") {
				sb.WriteString("  " + line + "\n")
			}
			if entry.menu != nil {
				sb.WriteString("  " + MenuStyle.Render(renderMenu(entry.menu)) + "\n")
			}
		case "note":
			sb.WriteString("  " + DimStyle.Render(entry.content) + "\n")
		case "error":
			sb.WriteString("  " + ErrStyle.Render("Error: "+entry.content) + "\n")
		}
	}
	return sb.String()
}

func renderWelcome() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(TitleStyle.Render(fmt.Sprintf("  %s voxbrief v%s", Logo, Version)) + "\n")
	sb.WriteString("\n")
	sb.WriteString("  " + BoldStyle.Render("Tips for getting started:") + "\n")
	sb.WriteString(DimStyle.Render("  1. Type the path of an OGG, MP3 or WAV file") + "\n")
	sb.WriteString(DimStyle.Render("  2. Pick a menu entry by number or name (1, summary, tasks...)") + "\n")
	sb.WriteString(DimStyle.Render("  3. /help and /stats work as in chat") + "\n")
	return sb.String()
}

func (m tryModel) renderStatusBar() string {
	left := DimStyle.Render(" stt: " + m.backend)
	right := DimStyle.Render(m.model + " ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func isExitCmd(s string) bool {
	s = strings.ToLower(s)
	return s == "exit" || s == "quit" || s == "/exit" || s == "/quit" || s == ":q"
}

// RunTry starts the interactive TUI.
func RunTry(ctx context.Context, h Handler, cfg TryConfig) error {
	p := tea.NewProgram(newTryModel(ctx, h, cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// --- single file model ---

type singleModel struct {
	spinner spinner.Model
	run     func() []*bus.Reply
	replies []*bus.Reply
	done    bool
}

func (m singleModel) Init() tea.Cmd {
	run := m.run
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return repliesMsg{replies: run()} },
	)
}

func (m singleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case repliesMsg:
		m.replies = msg.replies
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m singleModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("\n %s Processing...\n", m.spinner.View())
}

// processFile transcribes path and, when mode is set, presses that button on
// the resulting menu. It returns every reply in order.
func processFile(ctx context.Context, h Handler, path string, mode summary.Mode) ([]*bus.Reply, error) {
	ev, err := fileEvent(path)
	if err != nil {
		return nil, err
	}
	replies := h.Handle(ctx, ev)
	if mode == "" {
		return replies, nil
	}
	var menu *format.Menu
	for _, r := range replies {
		if r.Menu != nil {
			menu = r.Menu
		}
	}
	if menu == nil {
		return replies, nil
	}
	press := newEvent(bus.KindButton)
	press.Token = format.Token(mode, menu.SessionID)
	return append(replies, h.Handle(ctx, press)...), nil
}

// RunOnce processes one file with a spinner, then prints the replies.
func RunOnce(ctx context.Context, h Handler, path string, mode summary.Mode) error {
	if _, err := fileEvent(path); err != nil {
		fmt.Println(ErrStyle.Render("\n  Error: " + err.Error()))
		return err
	}

	var runErr error
	m := singleModel{
		spinner: newSpinner(),
		run: func() []*bus.Reply {
			replies, err := processFile(ctx, h, path, mode)
			runErr = err
			return replies
		},
	}
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}
	if runErr != nil {
		fmt.Println(ErrStyle.Render("\n  Error: " + runErr.Error()))
		return runErr
	}

	for _, r := range final.(singleModel).replies {
		fmt.Println()
		fmt.Println("  " + BotLabel.Render("voxbrief"))
		for _, line := range strings.Split(r.Text(), "\n") {
			fmt.Println("  " + line)
		}
		if r.Menu != nil && mode == "" {
			fmt.Println("  " + MenuStyle.Render(renderMenu(r.Menu)))
		}
	}
	fmt.Println()
	return nil
}
