package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tikkit/internal/domain"
	"tikkit/internal/ports"
	"tikkit/internal/store"
	"tikkit/internal/timeutil"
)

// ChangeKind classifies what a controller operation did, so the presentation
// layer can decide what to redraw without diffing the dataset.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeStarted
	ChangeStopped
	ChangeCreated // a new task was created and started
	ChangeTaskDeleted
	ChangeSessionDeleted
	ChangeSessionEdited
	ChangeDayDeleted
)

// Change describes the outcome of one operation. Kind == ChangeNone means the
// operation was rejected or had nothing to do; the dataset is untouched and
// nothing was persisted.
type Change struct {
	Kind   ChangeKind
	TaskID string
}

// Applied reports whether the operation mutated the dataset.
func (c Change) Applied() bool { return c.Kind != ChangeNone }

// Controller is the state machine over the dataset: IDLE when no session is
// open, TRACKING(task) when exactly one is. It is the only component allowed
// to mutate the store. Every applied mutation calls OnMutate with the current
// dataset, which the app wires to broadcast-and-persist.
type Controller struct {
	Log      *slog.Logger
	Store    *store.Store
	IDs      ports.IDSource
	Confirm  ports.Confirmer
	Now      func() time.Time
	OnMutate func(ds *domain.Dataset)
}

func (c *Controller) now() int64 { return c.Now().UnixMilli() }

func (c *Controller) mutated() {
	if c.OnMutate != nil {
		c.OnMutate(c.Store.Dataset())
	}
}

// Start toggles or switches tracking. If another task is running its session
// is closed first; if the target itself is running it is toggled off;
// otherwise a fresh session is opened. A restarted task always gets a new
// session, never a resumed one.
func (c *Controller) Start(taskID string) Change {
	t := c.Store.Task(taskID)
	if t == nil {
		return Change{}
	}
	nowMs := c.now()
	if cur := c.Store.Running(); cur != nil && cur.ID != t.ID {
		// Sub-millisecond switch: nothing closable yet, drop the
		// zero-length session so at most one stays open.
		if s := cur.OpenSession(); !c.Store.CloseSession(s, nowMs) {
			c.Store.RemoveSession(cur, s.Start)
		}
	}
	if s := t.OpenSession(); s != nil {
		if !c.Store.CloseSession(s, nowMs) {
			// Same guard for the sub-millisecond toggle.
			c.Store.RemoveSession(t, s.Start)
		}
		c.mutated()
		return Change{Kind: ChangeStopped, TaskID: t.ID}
	}
	c.Store.OpenSession(t, nowMs)
	c.Log.Debug("tracking started", slog.String("task", t.Name))
	c.mutated()
	return Change{Kind: ChangeStarted, TaskID: t.ID}
}

// StartByName starts the case-insensitive match for name, creating the task
// at the front of the dataset when no match exists.
func (c *Controller) StartByName(name string) Change {
	name = strings.TrimSpace(name)
	if name == "" {
		return Change{}
	}
	if t := c.Store.TaskNamed(name); t != nil {
		return c.Start(t.ID)
	}
	t := &domain.Task{ID: c.IDs.NewID(), Name: name, Sessions: []*domain.Session{}}
	c.Store.AddTaskFront(t)
	ch := c.Start(t.ID)
	if ch.Kind == ChangeStarted {
		ch.Kind = ChangeCreated
	}
	return ch
}

// StopCurrent closes the running session, if any. Used by logout and the
// escape shortcut; a no-op when already idle.
func (c *Controller) StopCurrent() Change {
	cur := c.Store.Running()
	if cur == nil {
		return Change{}
	}
	if s := cur.OpenSession(); !c.Store.CloseSession(s, c.now()) {
		c.Store.RemoveSession(cur, s.Start)
	}
	c.mutated()
	return Change{Kind: ChangeStopped, TaskID: cur.ID}
}

// DeleteTask removes the task and its entire history after confirmation.
// Deleting the running task implicitly returns the dataset to idle.
func (c *Controller) DeleteTask(taskID string) Change {
	t := c.Store.Task(taskID)
	if t == nil {
		return Change{}
	}
	if !c.Confirm.Confirm(fmt.Sprintf("Delete %q and all its history?", t.Name)) {
		return Change{}
	}
	c.Store.RemoveTask(t.ID)
	c.Log.Debug("task deleted", slog.String("task", t.Name))
	c.mutated()
	return Change{Kind: ChangeTaskDeleted, TaskID: t.ID}
}

// DeleteSession removes the session with the given start after confirmation.
// Deleting the open session is permitted and silently ends tracking.
func (c *Controller) DeleteSession(taskID string, sessionStart int64) Change {
	t := c.Store.Task(taskID)
	if t == nil || t.SessionAt(sessionStart) == nil {
		return Change{}
	}
	if !c.Confirm.Confirm("Delete this time entry?") {
		return Change{}
	}
	if !c.Store.RemoveSession(t, sessionStart) {
		return Change{}
	}
	c.mutated()
	return Change{Kind: ChangeSessionDeleted, TaskID: t.ID}
}

// EditSession rewrites a closed session's wall-clock times. The HH:MM values
// are re-applied onto each timestamp's original calendar date, so an edit
// never moves a session across days. Rejected, with the prior values
// retained, when the new end would not be after the new start.
func (c *Controller) EditSession(taskID string, sessionStart int64, startClock, endClock string) Change {
	t := c.Store.Task(taskID)
	if t == nil {
		return Change{}
	}
	s := t.SessionAt(sessionStart)
	if s == nil || s.Open() {
		return Change{}
	}
	newStart, err := timeutil.ApplyClock(s.Start, startClock)
	if err != nil {
		return Change{}
	}
	newEnd, err := timeutil.ApplyClock(*s.End, endClock)
	if err != nil {
		return Change{}
	}
	if !c.Store.SetSessionTimes(s, newStart, newEnd) {
		return Change{}
	}
	c.mutated()
	return Change{Kind: ChangeSessionEdited, TaskID: t.ID}
}

// DeleteDay removes every session of the task whose start falls on the given
// local calendar day, after confirmation.
func (c *Controller) DeleteDay(taskID, dayKey string) Change {
	t := c.Store.Task(taskID)
	if t == nil {
		return Change{}
	}
	matches := 0
	for _, s := range t.Sessions {
		if timeutil.DayKey(s.Start) == dayKey {
			matches++
		}
	}
	if matches == 0 {
		return Change{}
	}
	if !c.Confirm.Confirm(fmt.Sprintf("Delete all %q sessions for %s?", t.Name, dayKey)) {
		return Change{}
	}
	kept := t.Sessions[:0]
	for _, s := range t.Sessions {
		if timeutil.DayKey(s.Start) != dayKey {
			kept = append(kept, s)
		}
	}
	t.Sessions = kept
	c.mutated()
	return Change{Kind: ChangeDayDeleted, TaskID: t.ID}
}
