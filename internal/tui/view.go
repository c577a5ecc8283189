package tui

import (
	"fmt"
	"strings"

	"tikkit/internal/aggregate"
	"tikkit/internal/timeutil"
)

func (m Model) View() string {
	if m.overlay == overlayExpired {
		return modalStyle.Render("session expired — sign in again with `tikkit login`\n\npress any key to exit")
	}

	var b strings.Builder

	running := m.app.Store.Running()
	title := "tikkit · " + strings.ToLower(m.now.Format("Mon Jan 2"))
	b.WriteString(headerStyle.Render(title))
	if running != nil {
		open := running.OpenSession()
		b.WriteString("  " + runningStyle.Render("● "+running.Name))
		if open != nil {
			b.WriteString(" " + timeStyle.Render(timeutil.FormatDuration(open.DurationMs(m.now.UnixMilli()))))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	m.renderList(&b)
	m.renderHistory(&b)

	if m.overlay == overlayConfirm {
		b.WriteString("\n")
		b.WriteString(modalStyle.Render(m.confirmPrompt + "  " + hintStyle.Render("y/n")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.footer()))
	return b.String()
}

func (m Model) renderList(b *strings.Builder) {
	tasks := m.filtered()
	ds := m.app.Store.Dataset()
	nowMs := m.now.UnixMilli()
	q := strings.TrimSpace(m.search.Value())

	if q != "" {
		exact := false
		for _, t := range tasks {
			if strings.EqualFold(t.Name, q) {
				exact = true
				break
			}
		}
		if !exact {
			fmt.Fprintf(b, "%s\n", hintStyle.Render(fmt.Sprintf("↵ create %q", q)))
		}
	}
	if q == "" && len(tasks) == 0 {
		b.WriteString(dimStyle.Render("type a task name and press ↵ to begin"))
		b.WriteString("\n")
	}

	for i, t := range tasks {
		isRunning := t.OpenSession() != nil
		line := fmt.Sprintf("%s %-32s %10s",
			dot(isRunning), truncate(t.Name, 32),
			timeutil.FormatDuration(aggregate.TaskToday(t, m.now)))
		switch {
		case i == m.selIdx && m.pane == paneList:
			line = selectedStyle.Render(line)
		case isRunning:
			line = runningStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")

		if m.expanded[t.ID] {
			sessions := m.todaySessions(t)
			for j, s := range sessions {
				end := "now"
				if !s.Open() {
					end = timeutil.FormatClock(*s.End)
				}
				entry := fmt.Sprintf("    %s – %-5s %10s",
					timeutil.FormatClock(s.Start), end,
					timeutil.FormatDuration(s.DurationMs(nowMs)))
				if m.overlay == overlayEdit && m.edit.taskID == t.ID && m.edit.start == s.Start {
					entry = "    " + m.edit.input.View()
				} else if m.pane == paneSessions && m.selectedIs(t.ID) && j == m.sessIdx {
					entry = selectedStyle.Render(entry)
				} else {
					entry = dimStyle.Render(entry)
				}
				b.WriteString(entry)
				b.WriteString("\n")
			}
		}
	}

	if aggregate.AllToday(ds, m.now) > 0 {
		fmt.Fprintf(b, "%s\n",
			totalStyle.Render(fmt.Sprintf("  %-32s %10s", "today",
				timeutil.FormatDuration(aggregate.AllToday(ds, m.now)))))
	}
}

func (m Model) renderHistory(b *strings.Builder) {
	ds := m.app.Store.Dataset()
	rows := m.historyRows()
	if len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("history"))
		b.WriteString("\n")
	}
	for i, row := range rows {
		var line string
		if row.taskID == "" {
			chevron := "▼"
			if m.expandedDays[row.day] {
				chevron = "▲"
			}
			line = fmt.Sprintf("%-28s %10s  %s",
				timeutil.FormatDayLabel(row.day), timeutil.FormatDuration(row.ms), chevron)
		} else {
			line = fmt.Sprintf("    %-24s %10s", truncate(row.name, 24), timeutil.FormatDuration(row.ms))
		}
		if m.pane == paneHistory && i == m.histIdx {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if wk := aggregate.WeekTotal(ds, m.now); wk > 0 {
		fmt.Fprintf(b, "%s\n",
			totalStyle.Render(fmt.Sprintf("%-28s %10s", "week", timeutil.FormatDuration(wk))))
	}
}

func (m Model) footer() string {
	switch {
	case m.overlay == overlayConfirm:
		return "y confirm · n cancel"
	case m.overlay == overlayEdit:
		return "HH:MM HH:MM · ↵ save · esc cancel"
	case m.pane == paneSessions:
		return "↑/↓ pick · e edit · x delete · esc back"
	case m.pane == paneHistory:
		return "↑/↓ pick · ↵/tab expand or start · x delete day · esc back"
	default:
		return "↵ start/stop · tab log · → sessions · ^h history · ^d delete · esc stop · ^q logout · ^c quit"
	}
}

func (m Model) selectedIs(taskID string) bool {
	t := m.selectedTask()
	return t != nil && t.ID == taskID
}

func dot(running bool) string {
	if running {
		return "●"
	}
	return "○"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
