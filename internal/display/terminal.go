package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/pkg/provider/llm"
)

const (
	defaultColumns = 80
	defaultFPS     = 10

	// chromeLines is the space taken by everything but the preview.
	chromeLines = 6
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	hintStyle     = lipgloss.NewStyle().Faint(true)
)

// TerminalOption is a functional option for [NewTerminal].
type TerminalOption func(*Terminal)

// WithColumns sets the preview width in terminal cells.
func WithColumns(n int) TerminalOption {
	return func(t *Terminal) {
		if n > 0 {
			t.columns = n
		}
	}
}

// WithFPS sets how often the preview is refreshed.
func WithFPS(fps int) TerminalOption {
	return func(t *Terminal) {
		if fps > 0 {
			t.fps = fps
		}
	}
}

// WithBusy sets a func that reports whether an answer is being prepared.
func WithBusy(busy func() bool) TerminalOption {
	return func(t *Terminal) { t.busy = busy }
}

// WithIO replaces the terminal's input and output. A nil input disables
// keyboard handling.
func WithIO(in io.Reader, out io.Writer) TerminalOption {
	return func(t *Terminal) {
		t.in, t.out, t.customIO = in, out, true
	}
}

// Terminal renders a colour preview of the camera and the last question and
// answer. Esc or q quits.
type Terminal struct {
	frames  FrameSource
	turns   TurnSource
	columns int
	fps     int
	busy    func() bool

	customIO bool
	in       io.Reader
	out      io.Writer
}

// NewTerminal returns a terminal display reading from frames and turns.
func NewTerminal(frames FrameSource, turns TurnSource, opts ...TerminalOption) *Terminal {
	t := &Terminal{
		frames:  frames,
		turns:   turns,
		columns: defaultColumns,
		fps:     defaultFPS,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Run starts the terminal UI and blocks until the user quits or ctx ends.
func (t *Terminal) Run(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.customIO {
		opts = append(opts, tea.WithInput(t.in), tea.WithOutput(t.out))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}

	_, err := tea.NewProgram(t.model(), opts...).Run()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil:
		return nil
	default:
		return fmt.Errorf("display: terminal: %w", err)
	}
}

func (t *Terminal) model() *model {
	return &model{
		frames:     t.frames,
		turns:      t.turns,
		busy:       t.busy,
		columns:    t.columns,
		maxColumns: t.columns,
		interval:   time.Second / time.Duration(t.fps),
	}
}

type tickMsg time.Time

// model is the bubbletea state of the terminal display.
type model struct {
	frames     FrameSource
	turns      TurnSource
	busy       func() bool
	columns    int
	maxColumns int
	interval   time.Duration

	height   int
	lastSeq  uint64
	hasFrame bool
	preview  string
	err      error
}

func (m *model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Init() tea.Cmd {
	m.refresh()
	return m.tick()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyRunes:
			if len(msg.Runes) == 1 && msg.Runes[0] == 'q' {
				return m, tea.Quit
			}
		default:
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.columns = min(m.maxColumns, max(1, msg.Width))
		m.hasFrame = false
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tick()
	}
	return m, nil
}

// refresh re-renders the preview when a new frame arrived.
func (m *model) refresh() {
	f, ok := m.frames.Latest()
	if !ok || (m.hasFrame && f.Seq == m.lastSeq) {
		return
	}
	m.lastSeq, m.hasFrame = f.Seq, true

	img, err := f.Image()
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	maxRows := 0
	if m.height > chromeLines {
		maxRows = m.height - chromeLines
	}
	m.preview = renderPreview(img, m.columns, maxRows)
}

func (m *model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("oculus"))
	if m.busy != nil && m.busy() {
		sb.WriteString(hintStyle.Render("  thinking..."))
	}
	sb.WriteByte('\n')

	switch {
	case !m.hasFrame:
		sb.WriteString(hintStyle.Render("waiting for camera..."))
	case m.err != nil:
		sb.WriteString(hintStyle.Render("frame not viewable: " + m.err.Error()))
	default:
		sb.WriteString(m.preview)
	}
	sb.WriteByte('\n')

	q, a := lastExchange(m.turns.Turns())
	if q != "" {
		sb.WriteString(questionStyle.Render("you: " + q))
		sb.WriteByte('\n')
		sb.WriteString(answerStyle.Render("assistant: " + a))
		sb.WriteByte('\n')
	}
	sb.WriteString(hintStyle.Render("esc/q: quit"))
	return sb.String()
}

// lastExchange returns the most recent question and its answer.
func lastExchange(turns []conversation.Turn) (question, answer string) {
	for i := len(turns) - 1; i >= 0; i-- {
		switch turns[i].Role {
		case llm.RoleAssistant:
			if answer == "" {
				answer = turns[i].Text
			}
		case llm.RoleUser:
			return turns[i].Text, answer
		}
	}
	return "", ""
}
