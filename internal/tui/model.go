// Package tui is the respondent's terminal UI. It renders engine snapshots
// and turns key presses into engine intents; it holds no survey state of
// its own.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rcliao/pulse/internal/engine"
	"github.com/rcliao/pulse/internal/model"
)

// Driver is the engine surface the UI talks to.
type Driver interface {
	Subscribe() (<-chan engine.Snapshot, func())
	Answer(ctx context.Context, questionID string, a model.Answer) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Jump(ctx context.Context, index int) error
	Submit(ctx context.Context) error
}

type snapshotMsg engine.Snapshot

type closedMsg struct{}

type submitDoneMsg struct{ err error }

// Model is the bubbletea model for one survey run.
type Model struct {
	ctx    context.Context
	drv    Driver
	title  string
	snaps  <-chan engine.Snapshot
	cancel func()

	snap    engine.Snapshot
	hasSnap bool
	input   textinput.Model
	cursor  int
	width   int
}

// New subscribes to drv. Call Close (or let the program quit) to release
// the subscription.
func New(ctx context.Context, drv Driver, title string) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type your answer..."
	ti.CharLimit = 2000
	ti.Width = 60
	ch, cancel := drv.Subscribe()
	return &Model{ctx: ctx, drv: drv, title: title, snaps: ch, cancel: cancel, input: ti}
}

// Run starts the program in the alternate screen and blocks until it exits.
func Run(ctx context.Context, drv Driver, title string) (engine.Snapshot, error) {
	m := New(ctx, drv, title)
	defer m.Close()
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if fm, ok := final.(*Model); ok {
		return fm.snap, err
	}
	return m.snap, err
}

// Close releases the snapshot subscription.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Snapshot returns the last snapshot the model rendered.
func (m *Model) Snapshot() engine.Snapshot { return m.snap }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snaps), textinput.Blink)
}

func waitForSnapshot(ch <-chan engine.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.apply(engine.Snapshot(msg))
		return m, waitForSnapshot(m.snaps)
	case closedMsg:
		return m, tea.Quit
	case submitDoneMsg:
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.onFreeText() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(s engine.Snapshot) {
	resync := !m.hasSnap || s.Index != m.snap.Index || s.Phase != m.snap.Phase
	m.snap = s
	m.hasSnap = true
	if resync {
		m.syncInputs()
	}
}

// syncInputs loads the stored answer of the current question into the
// widgets.
func (m *Model) syncInputs() {
	q, ok := m.snap.Current()
	if !ok {
		m.input.Blur()
		return
	}
	a := m.snap.Answers[q.ID]
	m.cursor = 0
	switch q.Type {
	case model.TypeFreeText:
		m.input.SetValue(a.Text)
		m.input.CursorEnd()
		m.input.Focus()
	case model.TypeSingleChoice, model.TypeRating:
		m.input.Blur()
		for i, o := range q.Options {
			if o.Value == a.Choice {
				m.cursor = i
			}
		}
	default:
		m.input.Blur()
	}
}

func (m *Model) onFreeText() bool {
	q, ok := m.snap.Current()
	return ok && m.snap.Phase == engine.PhaseActive && q.Type == model.TypeFreeText
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.snap.Phase {
	case engine.PhaseActive:
	case engine.PhaseSubmitting, engine.PhaseBootstrapping:
		return m, nil
	default:
		switch key {
		case "q", "esc", "enter":
			return m, tea.Quit
		}
		return m, nil
	}

	switch key {
	case "esc":
		return m, tea.Quit
	case "tab", "enter":
		m.drv.Next(m.ctx)
		return m, nil
	case "shift+tab":
		m.drv.Previous(m.ctx)
		return m, nil
	case "ctrl+s":
		return m, m.submit()
	}
	if n, ok := strings.CutPrefix(key, "alt+"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 {
			m.drv.Jump(m.ctx, i-1)
			return m, nil
		}
	}

	q, ok := m.snap.Current()
	if !ok {
		return m, nil
	}
	switch q.Type {
	case model.TypeFreeText:
		return m.handleText(q, msg)
	case model.TypeSingleChoice, model.TypeRating:
		m.handleChoice(q, key)
	case model.TypeBoundedAmount:
		m.handleAmount(q, key)
	}
	return m, nil
}

func (m *Model) handleText(q model.Question, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.drv.Answer(m.ctx, q.ID, model.TextAnswer(v))
	}
	return m, cmd
}

func (m *Model) handleChoice(q model.Question, key string) {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(q.Options)-1 {
			m.cursor++
		}
	case " ", "x":
		m.choose(q, m.cursor)
	default:
		if i, err := strconv.Atoi(key); err == nil && i >= 1 && i <= len(q.Options) {
			m.cursor = i - 1
			m.choose(q, m.cursor)
		}
	}
}

func (m *Model) choose(q model.Question, i int) {
	a := model.Answer{Kind: q.Type, Choice: q.Options[i].Value}
	m.drv.Answer(m.ctx, q.ID, a)
}

func (m *Model) handleAmount(q model.Question, key string) {
	var step float64
	switch key {
	case "up", "+", "=", "k":
		step = 1
	case "down", "-", "j":
		step = -1
	case "pgup":
		step = 10
	case "pgdown":
		step = -10
	default:
		return
	}
	v := q.Min
	if a, ok := m.snap.Answers[q.ID]; ok && a.Amount != nil {
		v = *a.Amount + step
	}
	v = max(q.Min, min(q.Max, v))
	m.drv.Answer(m.ctx, q.ID, model.AmountAnswer(v))
}

func (m *Model) submit() tea.Cmd {
	ctx, drv := m.ctx, m.drv
	return func() tea.Msg {
		return submitDoneMsg{err: drv.Submit(ctx)}
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch m.snap.Phase {
	case engine.PhaseBootstrapping, "":
		b.WriteString(progressStyle.Render("Loading survey..."))
	case engine.PhaseAlreadyComplete, engine.PhaseSealed:
		b.WriteString(doneStyle.Render("Thank you! Your response has been recorded."))
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("Press q to exit."))
	case engine.PhaseNoQuestions:
		b.WriteString("No questions are configured for this survey yet.")
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("Press q to exit."))
	case engine.PhaseCatalogUnavailable:
		b.WriteString(errorStyle.Render(m.snap.Error))
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("Press q to exit."))
	default:
		b.WriteString(m.questionView())
	}

	width := 72
	if m.width > 0 && m.width-4 < width {
		width = max(20, m.width-4)
	}
	return boxStyle.Width(width).Render(b.String()) + "\n"
}

func (m *Model) questionView() string {
	s := m.snap
	q, ok := s.Current()
	if !ok {
		return ""
	}
	var lines []string
	lines = append(lines,
		progressStyle.Render(fmt.Sprintf("Question %d of %d · %d%% complete", s.Index+1, s.Total(), s.Percent())),
		m.dots(),
		"",
		questionStyle.Render(q.Text),
	)
	if q.Helper != "" {
		lines = append(lines, helperStyle.Render(q.Helper))
	}
	lines = append(lines, "")

	a, answered := s.Answers[q.ID]
	switch q.Type {
	case model.TypeFreeText:
		lines = append(lines, m.input.View())
	case model.TypeSingleChoice, model.TypeRating:
		for i, o := range q.Options {
			mark := "( )"
			if answered && a.Choice == o.Value {
				mark = "(•)"
			}
			line := fmt.Sprintf("%s %d. %s", mark, i+1, o.Label)
			if i == m.cursor {
				lines = append(lines, selectedStyle.Render("> "+line))
			} else {
				lines = append(lines, optionStyle.Render("  "+line))
			}
		}
	case model.TypeBoundedAmount:
		lines = append(lines, amountBar(q, a.Amount))
	}

	lines = append(lines, "")
	if s.DwellRemaining > 0 {
		lines = append(lines, progressStyle.Render(fmt.Sprintf("Take your time to read the question (%ds)", s.DwellRemaining)))
	}
	if s.Advisory != nil {
		lines = append(lines, advisoryStyle.Render(s.Advisory.Message))
	}
	if s.Error != "" {
		lines = append(lines, errorStyle.Render(s.Error))
	}
	if s.Phase == engine.PhaseSubmitting {
		lines = append(lines, progressStyle.Render("Submitting..."))
	}

	hint := "tab next · shift+tab back · alt+N jump · esc save & quit"
	if s.Complete {
		hint = "ctrl+s submit · " + hint
	}
	lines = append(lines, hintStyle.Render(hint))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) dots() string {
	s := m.snap
	parts := make([]string, len(s.Questions))
	for i := range s.Questions {
		switch {
		case i == s.Index:
			parts[i] = dotCurrent
		case i < len(s.Satisfied) && s.Satisfied[i]:
			parts[i] = dotDone
		case s.IsVisited(i):
			parts[i] = dotVisited
		default:
			parts[i] = dotPending
		}
	}
	return strings.Join(parts, " ")
}

func amountBar(q model.Question, v *float64) string {
	const width = 30
	if v == nil {
		return optionStyle.Render(fmt.Sprintf("[%s] not set (%g-%g, use up/down)", strings.Repeat("-", width), q.Min, q.Max))
	}
	filled := int((*v - q.Min) / (q.Max - q.Min) * width)
	filled = max(0, min(width, filled))
	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)
	return selectedStyle.Render(fmt.Sprintf("[%s] %g", bar, *v))
}
