// Package tui is the interactive tracker: a search-driven task list with a
// live-updating clock, session log editing, and this week's history. It only
// reads the dataset; every mutation goes through the controller.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"tikkit/internal/aggregate"
	"tikkit/internal/app"
	"tikkit/internal/domain"
	"tikkit/internal/timeutil"
	"tikkit/internal/usecase"
)

type pane int

const (
	paneList pane = iota
	paneSessions
	paneHistory
)

type overlay int

const (
	overlayNone overlay = iota
	overlayConfirm
	overlayEdit
	overlayExpired
)

type tickMsg time.Time

type syncMsg struct{ ds *domain.Dataset }

// AuthExpiredMsg is sent into the program when the remote store rejects the
// credential mid-session.
type AuthExpiredMsg struct{}

// Gate implements ports.Confirmer for the TUI. The controller's first call
// captures the prompt and refuses; the model shows the modal and, on a yes,
// arms the gate and retries the operation.
type Gate struct {
	armed   bool
	pending string
}

func NewGate() *Gate { return &Gate{} }

func (g *Gate) Confirm(prompt string) bool {
	if g.armed {
		g.armed = false
		g.pending = ""
		return true
	}
	g.pending = prompt
	return false
}

func (g *Gate) arm() { g.armed = true }

func (g *Gate) take() (string, bool) {
	p := g.pending
	g.pending = ""
	return p, p != ""
}

type editState struct {
	taskID string
	start  int64
	input  textinput.Model
}

// Model is the bubbletea model for one tracking context.
type Model struct {
	app  *app.App
	gate *Gate

	// OnLogout tears down the cached credential before quitting.
	OnLogout func()

	search       textinput.Model
	selIdx       int
	expanded     map[string]bool
	expandedDays map[string]bool

	pane    pane
	sessIdx int
	histIdx int

	overlay       overlay
	confirmPrompt string
	confirmRetry  func() usecase.Change
	edit          editState

	now     time.Time
	ticking bool
	sub     <-chan *domain.Dataset
	unsub   func()

	width  int
	height int
}

func New(a *app.App, gate *Gate) Model {
	search := textinput.New()
	search.Placeholder = "task name or search"
	search.Prompt = "› "
	search.CharLimit = 80
	search.Focus()

	m := Model{
		app:          a,
		gate:         gate,
		search:       search,
		selIdx:       -1,
		expanded:     make(map[string]bool),
		expandedDays: make(map[string]bool),
		now:          time.Now(),
	}
	if a.Hub != nil {
		m.sub, m.unsub = a.Hub.Subscribe()
	}
	m.ticking = a.Store.Running() != nil
	return m
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitSync(ch <-chan *domain.Dataset) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ds, ok := <-ch
		if !ok {
			return nil
		}
		return syncMsg{ds: ds}
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitSync(m.sub), m.titleCmd()}
	if m.ticking {
		cmds = append(cmds, tickCmd())
	}
	return tea.Batch(cmds...)
}

// armTick schedules the one-second clock, but only while a task is running.
// The tick does not re-arm once the running task is gone, so deletion or an
// external snapshot stops the clock on its next firing.
func (m *Model) armTick() tea.Cmd {
	if m.ticking || m.app.Store.Running() == nil {
		return nil
	}
	m.ticking = true
	return tickCmd()
}

func (m Model) titleCmd() tea.Cmd {
	cur := m.app.Store.Running()
	if cur == nil {
		return tea.SetWindowTitle("tikkit")
	}
	s := cur.OpenSession()
	elapsed := m.now.UnixMilli() - s.Start
	return tea.SetWindowTitle(timeutil.FormatShort(elapsed) + " · " + cur.Name + " · tikkit")
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case AuthExpiredMsg:
		m.overlay = overlayExpired
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.app.Store.Running() == nil {
			m.ticking = false
			return m, m.titleCmd()
		}
		return m, tea.Batch(tickCmd(), m.titleCmd())

	case syncMsg:
		// External snapshot: replace wholesale, never merge.
		m.app.Store.Replace(msg.ds)
		m.now = time.Now()
		m.clamp()
		cmd := tea.Batch(waitSync(m.sub), m.armTick(), m.titleCmd())
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case overlayExpired:
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit
	case overlayConfirm:
		return m.handleConfirmKey(msg)
	case overlayEdit:
		return m.handleEditKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit
	case "ctrl+q":
		// Logout: close the running session and write it out before the
		// credential goes away. The flush is synchronous; the background
		// save would race the process exit.
		m.app.Controller.StopCurrent()
		_ = m.app.Flush(context.Background())
		if m.OnLogout != nil {
			m.OnLogout()
		}
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit
	}

	switch m.pane {
	case paneSessions:
		return m.handleSessionsKey(msg)
	case paneHistory:
		return m.handleHistoryKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tasks := m.filtered()
	switch msg.String() {
	case "down":
		if m.selIdx < len(tasks)-1 {
			m.selIdx++
		}
		return m, nil
	case "up":
		if m.selIdx > -1 {
			m.selIdx--
		}
		return m, nil

	case "tab":
		idx := m.selIdx
		if idx < 0 {
			idx = 0
		}
		if idx < len(tasks) {
			id := tasks[idx].ID
			m.expanded[id] = !m.expanded[id]
		}
		return m, nil

	case "right":
		if t := m.selectedTask(); t != nil && m.expanded[t.ID] && len(m.todaySessions(t)) > 0 {
			m.pane = paneSessions
			m.sessIdx = 0
			m.search.Blur()
		}
		return m, nil

	case "ctrl+h":
		m.pane = paneHistory
		m.histIdx = 0
		m.search.Blur()
		return m, nil

	case "ctrl+d":
		t := m.selectedTask()
		if t == nil {
			return m, nil
		}
		id := t.ID
		cmd := m.destructive(func() usecase.Change {
			return m.app.Controller.DeleteTask(id)
		})
		return m, cmd

	case "enter":
		return m.startFromSearch(tasks)

	case "esc":
		if m.search.Value() != "" {
			m.search.SetValue("")
			m.selIdx = -1
			return m, nil
		}
		m.app.Controller.StopCurrent()
		m.now = time.Now()
		return m, m.titleCmd()

	default:
		var cmd tea.Cmd
		before := m.search.Value()
		m.search, cmd = m.search.Update(msg)
		if m.search.Value() != before {
			m.selIdx = -1
		}
		return m, cmd
	}
}

// startFromSearch resolves enter on the search box: an explicit selection
// wins, then an exact name match, then the first filtered task; with no match
// at all the query becomes a brand-new task.
func (m Model) startFromSearch(tasks []*domain.Task) (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.search.Value())
	var ch usecase.Change
	switch {
	case m.selIdx >= 0 && m.selIdx < len(tasks):
		ch = m.app.Controller.Start(tasks[m.selIdx].ID)
	case q == "":
		return m, nil
	case len(tasks) > 0:
		target := tasks[0]
		for _, t := range tasks {
			if strings.EqualFold(t.Name, q) {
				target = t
				break
			}
		}
		ch = m.app.Controller.Start(target.ID)
	default:
		ch = m.app.Controller.StartByName(q)
	}
	if ch.Applied() {
		m.search.SetValue("")
		m.selIdx = -1
		m.now = time.Now()
	}
	cmd := tea.Batch(m.armTick(), m.titleCmd())
	return m, cmd
}

func (m Model) handleSessionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	t := m.selectedTask()
	if t == nil {
		m.pane = paneList
		m.search.Focus()
		return m, nil
	}
	sessions := m.todaySessions(t)
	switch msg.String() {
	case "down":
		if m.sessIdx < len(sessions)-1 {
			m.sessIdx++
		}
	case "up":
		if m.sessIdx > 0 {
			m.sessIdx--
		}
	case "e":
		if m.sessIdx < len(sessions) && !sessions[m.sessIdx].Open() {
			s := sessions[m.sessIdx]
			input := textinput.New()
			input.SetValue(timeutil.FormatClock(s.Start) + " " + timeutil.FormatClock(*s.End))
			input.CharLimit = 11
			input.Focus()
			m.edit = editState{taskID: t.ID, start: s.Start, input: input}
			m.overlay = overlayEdit
		}
	case "x", "backspace":
		if m.sessIdx < len(sessions) {
			taskID, start := t.ID, sessions[m.sessIdx].Start
			cmd := m.destructive(func() usecase.Change {
				return m.app.Controller.DeleteSession(taskID, start)
			})
			return m, cmd
		}
	case "esc", "left":
		m.pane = paneList
		m.search.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.historyRows()
	switch msg.String() {
	case "down":
		if m.histIdx < len(rows)-1 {
			m.histIdx++
		}
	case "up":
		if m.histIdx > 0 {
			m.histIdx--
		}
	case "enter", "tab":
		if m.histIdx >= len(rows) {
			return m, nil
		}
		row := rows[m.histIdx]
		if row.taskID == "" {
			m.expandedDays[row.day] = !m.expandedDays[row.day]
			return m, nil
		}
		if msg.String() == "enter" {
			ch := m.app.Controller.Start(row.taskID)
			if ch.Applied() {
				m.pane = paneList
				m.search.Focus()
				m.now = time.Now()
			}
			cmd := tea.Batch(m.armTick(), m.titleCmd(), textinput.Blink)
			return m, cmd
		}
	case "x", "backspace":
		if m.histIdx < len(rows) && rows[m.histIdx].taskID != "" {
			row := rows[m.histIdx]
			cmd := m.destructive(func() usecase.Change {
				return m.app.Controller.DeleteDay(row.taskID, row.day)
			})
			return m, cmd
		}
	case "esc", "ctrl+h", "left":
		m.pane = paneList
		m.search.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.overlay = overlayNone
		m.gate.arm()
		retry := m.confirmRetry
		m.confirmRetry = nil
		if retry != nil {
			retry()
		}
		m.clamp()
		cmd := tea.Batch(m.armTick(), m.titleCmd())
		return m, cmd
	case "n", "N", "esc":
		m.overlay = overlayNone
		m.confirmRetry = nil
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		startClock, endClock, ok := splitClocks(m.edit.input.Value())
		if ok {
			// A rejected edit silently keeps the prior values.
			m.app.Controller.EditSession(m.edit.taskID, m.edit.start, startClock, endClock)
		}
		m.overlay = overlayNone
		return m, nil
	case "esc":
		m.overlay = overlayNone
		return m, nil
	}
	var cmd tea.Cmd
	m.edit.input, cmd = m.edit.input.Update(msg)
	return m, cmd
}

func splitClocks(v string) (string, string, bool) {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '-' || r == '–'
	})
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// destructive runs a confirmed operation. The gate refuses the first pass and
// captures the prompt; the modal's yes answer arms the gate and retries.
func (m *Model) destructive(op func() usecase.Change) tea.Cmd {
	ch := op()
	if ch.Applied() {
		m.clamp()
		return tea.Batch(m.armTick(), m.titleCmd())
	}
	if prompt, ok := m.gate.take(); ok {
		m.overlay = overlayConfirm
		m.confirmPrompt = prompt
		m.confirmRetry = op
	}
	return nil
}

func (m *Model) clamp() {
	tasks := m.filtered()
	if m.selIdx > len(tasks)-1 {
		m.selIdx = len(tasks) - 1
	}
	if m.selIdx < -1 {
		m.selIdx = -1
	}
	if t := m.selectedTask(); t != nil {
		if n := len(m.todaySessions(t)); m.sessIdx > n-1 {
			m.sessIdx = max(0, n-1)
		}
	} else if m.pane == paneSessions {
		m.pane = paneList
		m.search.Focus()
	}
	if rows := m.historyRows(); m.histIdx > len(rows)-1 {
		m.histIdx = max(0, len(rows)-1)
	}
}

func (m Model) filtered() []*domain.Task {
	return aggregate.Filter(m.app.Store.Dataset(), m.search.Value(), m.now)
}

func (m Model) selectedTask() *domain.Task {
	tasks := m.filtered()
	idx := m.selIdx
	if idx < 0 {
		idx = 0
	}
	if idx >= len(tasks) {
		return nil
	}
	return tasks[idx]
}

func (m Model) todaySessions(t *domain.Task) []*domain.Session {
	nowMs := m.now.UnixMilli()
	var out []*domain.Session
	for _, s := range t.Sessions {
		if timeutil.SameDay(s.Start, nowMs) {
			out = append(out, s)
		}
	}
	return out
}

// historyRow is one line of the history pane: a day header when taskID is
// empty, otherwise one task's share of that day.
type historyRow struct {
	day    string
	taskID string
	name   string
	ms     int64
}

func (m Model) historyRows() []historyRow {
	ds := m.app.Store.Dataset()
	var rows []historyRow
	for _, day := range aggregate.HistoryDays(ds, m.now) {
		rows = append(rows, historyRow{day: day, ms: aggregate.DayTotal(ds, day)})
		if !m.expandedDays[day] {
			continue
		}
		for _, e := range aggregate.TasksForDay(ds, day) {
			rows = append(rows, historyRow{day: day, taskID: e.ID, name: e.Name, ms: e.Ms})
		}
	}
	return rows
}
