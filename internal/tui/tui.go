// Package tui provides an interactive terminal board for tend using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/baiirun/tend/internal/graph"
	"github.com/baiirun/tend/internal/model"
	"github.com/baiirun/tend/internal/recurrence"
	"github.com/baiirun/tend/internal/routine"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type rowKind int

const (
	rowOverdue rowKind = iota
	rowDue
	rowTask
)

// Status icons
const (
	iconPending    = "○"
	iconInProgress = "◐"
	iconDone       = "●"
	iconOverdue    = "!"
)

const contentPadding = 2

type row struct {
	kind      rowKind
	item      model.Item
	completed bool
	overdue   int
	last      recurrence.Date
}

// Model is the Bubble Tea model for the board.
type Model struct {
	engine *routine.Engine
	graph  *graph.Manager
	now    func() time.Time

	today  recurrence.Date
	rows   []row
	cursor int

	width   int
	height  int
	err     error
	message string
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	overdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// New creates a board. now supplies the wall clock; nil means time.Now.
func New(engine *routine.Engine, manager *graph.Manager, now func() time.Time) Model {
	if now == nil {
		now = time.Now
	}
	return Model{
		engine: engine,
		graph:  manager,
		now:    now,
		today:  engine.Today(now()),
	}
}

// Messages
type boardMsg struct {
	today recurrence.Date
	rows  []row
	err   error
}

type actionMsg struct {
	message string
	err     error
}

// loadRows reads overdue routines, routines due today and ready tasks.
func (m Model) loadRows() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		today := m.engine.Today(m.now())

		overdue, err := m.engine.OverdueRoutines(ctx, today)
		if err != nil {
			return boardMsg{err: err}
		}
		due, err := m.engine.RoutinesDue(ctx, today)
		if err != nil {
			return boardMsg{err: err}
		}
		ready, err := m.graph.Ready(ctx)
		if err != nil {
			return boardMsg{err: err}
		}

		rows := make([]row, 0, len(overdue)+len(due)+len(ready))
		for _, o := range overdue {
			rows = append(rows, row{kind: rowOverdue, item: o.Routine, overdue: o.DaysOverdue})
		}
		for _, d := range due {
			rows = append(rows, row{kind: rowDue, item: d.Routine, completed: d.Completed, last: d.LastCompleted})
		}
		for _, t := range ready {
			rows = append(rows, row{kind: rowTask, item: t})
		}
		return boardMsg{today: today, rows: rows}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.loadRows()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Clear message on any key
		m.message = ""
		m.err = nil
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.today = msg.today
		m.rows = msg.rows
		if m.cursor >= len(m.rows) {
			m.cursor = max(0, len(m.rows)-1)
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.message = msg.message
		}
		return m, m.loadRows()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(0, len(m.rows)-1)

	case "r":
		return m, m.loadRows()
	case "d", "enter":
		return m.doDone()
	case "s":
		return m.doSkip()
	case "u":
		return m.doUndo()
	case "i":
		return m.doStart()
	}
	return m, nil
}

func (m Model) selected() (row, bool) {
	if len(m.rows) == 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

// doDone completes today's occurrence, catches up an overdue routine or
// completes a task, depending on the selected row.
func (m Model) doDone() (Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok {
		return m, nil
	}
	today := m.today
	return m, func() tea.Msg {
		ctx := context.Background()
		switch r.kind {
		case rowOverdue:
			res, err := m.engine.CompleteRoutineToNextDue(ctx, r.item.ID, today)
			if err != nil {
				return actionMsg{err: err}
			}
			if !res.Success {
				return actionMsg{err: fmt.Errorf("%s", res.Error)}
			}
			return actionMsg{message: fmt.Sprintf("Caught up %s: %d completed", r.item.Title, res.CompletedCount)}
		case rowDue:
			res, err := m.engine.CompleteRoutine(ctx, r.item.ID, today, "")
			if err != nil {
				return actionMsg{err: err}
			}
			if !res.Success {
				return actionMsg{err: fmt.Errorf("%s", res.Error)}
			}
			if res.AlreadySkipped {
				return actionMsg{message: fmt.Sprintf("%s was skipped today", r.item.Title)}
			}
			return actionMsg{message: fmt.Sprintf("Completed %s", r.item.Title)}
		default:
			change, err := m.graph.CompleteItem(ctx, r.item.ID)
			if err != nil {
				return actionMsg{err: err}
			}
			msg := fmt.Sprintf("Completed #%d", r.item.ID)
			if n := len(change.Unblocked); n > 0 {
				msg += fmt.Sprintf(", unblocked %d", n)
			}
			return actionMsg{message: msg}
		}
	}
}

func (m Model) doSkip() (Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.kind == rowTask {
		return m, nil
	}
	today := m.today
	return m, func() tea.Msg {
		ctx := context.Background()
		if r.kind == rowOverdue {
			res, err := m.engine.SkipRoutineToNextDue(ctx, r.item.ID, today)
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{message: fmt.Sprintf("Skipped %d missed %s", res.SkippedCount, r.item.Title)}
		}
		if _, err := m.engine.SkipRoutine(ctx, r.item.ID, today, ""); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{message: fmt.Sprintf("Skipped %s", r.item.Title)}
	}
}

// doUndo removes today's completion or skip of the selected routine.
func (m Model) doUndo() (Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.kind != rowDue {
		return m, nil
	}
	today := m.today
	return m, func() tea.Msg {
		ctx := context.Background()
		res, err := m.engine.UncompleteRoutine(ctx, r.item.ID, today)
		if err != nil {
			return actionMsg{err: err}
		}
		if !res.Deleted {
			if res, err = m.engine.UnskipRoutine(ctx, r.item.ID, today); err != nil {
				return actionMsg{err: err}
			}
		}
		if !res.Deleted {
			return actionMsg{message: "Nothing to undo"}
		}
		return actionMsg{message: fmt.Sprintf("Reopened %s", r.item.Title)}
	}
}

func (m Model) doStart() (Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.kind != rowTask {
		return m, nil
	}
	if r.item.Status != model.StatusPending {
		m.message = "Can only start pending tasks"
		return m, nil
	}
	return m, func() tea.Msg {
		if _, err := m.graph.UpdateStatus(context.Background(), r.item.ID, model.StatusInProgress); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{message: fmt.Sprintf("Started #%d", r.item.ID)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tend · " + m.today.String()))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("Nothing due. Press r to refresh, q to quit."))
	}

	section := rowKind(-1)
	for i, r := range m.rows {
		if r.kind != section {
			section = r.kind
			b.WriteString("\n")
			b.WriteString(sectionStyle.Render(sectionTitle(section)))
			b.WriteString("\n")
		}
		line := m.formatRow(r)
		if i == m.cursor {
			line = selectedRowStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("j/k move · d done · s skip · u undo · i start · r refresh · q quit"))

	// Status message
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	} else if m.message != "" {
		b.WriteString("\n")
		b.WriteString(messageStyle.Render(m.message))
	}

	padStyle := lipgloss.NewStyle().
		PaddingLeft(contentPadding).
		PaddingRight(contentPadding).
		PaddingTop(1)

	return padStyle.Render(b.String())
}

func sectionTitle(k rowKind) string {
	switch k {
	case rowOverdue:
		return "Overdue"
	case rowDue:
		return "Due today"
	default:
		return "Ready"
	}
}

func (m Model) formatRow(r row) string {
	switch r.kind {
	case rowOverdue:
		return overdueStyle.Render(iconOverdue) + " " + r.item.Title +
			helpStyle.Render(fmt.Sprintf("  %d missed", r.overdue))
	case rowDue:
		icon := iconPending
		if r.completed {
			icon = doneStyle.Render(iconDone)
		}
		line := icon + " " + r.item.Title
		if r.item.RecurrenceTime != nil {
			line += helpStyle.Render(" @ " + *r.item.RecurrenceTime)
		}
		if !r.last.IsZero() && !r.completed {
			ago := humanize.RelTime(r.last.Start(time.UTC), m.today.Start(time.UTC), "ago", "from now")
			line += helpStyle.Render("  last done " + ago)
		}
		return line
	default:
		icon := iconPending
		if r.item.Status == model.StatusInProgress {
			icon = iconInProgress
		}
		return fmt.Sprintf("%s #%d %s", icon, r.item.ID, r.item.Title)
	}
}

// Run starts the board.
func Run(engine *routine.Engine, manager *graph.Manager, now func() time.Time) error {
	m := New(engine, manager, now)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
