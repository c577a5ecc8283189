package usecase

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tikkit/internal/domain"
	"tikkit/internal/store"
	"tikkit/internal/timeutil"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type stubConfirm struct {
	answer  bool
	prompts []string
}

func (c *stubConfirm) Confirm(prompt string) bool {
	c.prompts = append(c.prompts, prompt)
	return c.answer
}

// fakeClock hands out strictly increasing instants so consecutive operations
// never collide on the same millisecond.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, time.August, 26, 9, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

type harness struct {
	ctrl    *Controller
	store   *store.Store
	confirm *stubConfirm
	mutated int
}

func newHarness(ds *domain.Dataset) *harness {
	h := &harness{
		store:   store.New(ds),
		confirm: &stubConfirm{answer: true},
	}
	h.ctrl = &Controller{
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:   h.store,
		IDs:     &seqIDs{},
		Confirm: h.confirm,
		Now:     newFakeClock().Now,
	}
	h.ctrl.OnMutate = func(*domain.Dataset) { h.mutated++ }
	return h
}

func openCount(ds *domain.Dataset) int {
	n := 0
	for _, t := range ds.Tasks {
		for _, s := range t.Sessions {
			if s.Open() {
				n++
			}
		}
	}
	return n
}

func TestStartOpensFreshSession(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})

	ch := h.ctrl.Start("a")
	if ch.Kind != ChangeStarted || ch.TaskID != "a" {
		t.Fatalf("Start = %+v", ch)
	}
	if h.store.Running() == nil || h.store.Running().ID != "a" {
		t.Fatal("task a should be running")
	}
	if h.mutated != 1 {
		t.Fatalf("mutations = %d, want 1", h.mutated)
	}
}

func TestStartTogglesOff(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	h.ctrl.Start("a")

	ch := h.ctrl.Start("a")
	if ch.Kind != ChangeStopped {
		t.Fatalf("second Start = %+v, want stopped", ch)
	}
	if h.store.Running() != nil {
		t.Fatal("toggle off left a running task")
	}
	task := h.store.Task("a")
	if len(task.Sessions) != 1 || task.Sessions[0].Open() {
		t.Fatalf("sessions after toggle: %+v", task.Sessions)
	}
	if task.Sessions[0].DurationMs(0) <= 0 {
		t.Fatal("closed session should have positive length")
	}
}

func TestStartSwitchesTasks(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{
		{ID: "a", Name: "writing"},
		{ID: "b", Name: "reading"},
	}})
	h.ctrl.Start("a")

	ch := h.ctrl.Start("b")
	if ch.Kind != ChangeStarted || ch.TaskID != "b" {
		t.Fatalf("switch = %+v", ch)
	}
	if openCount(h.store.Dataset()) != 1 {
		t.Fatal("switching must keep exactly one open session")
	}
	if h.store.Running().ID != "b" {
		t.Fatal("b should be running after the switch")
	}
	a := h.store.Task("a")
	if len(a.Sessions) != 1 || a.Sessions[0].Open() {
		t.Fatalf("a's session was not closed: %+v", a.Sessions)
	}
}

func TestRestartOpensNewSession(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	h.ctrl.Start("a")
	h.ctrl.Start("a")
	h.ctrl.Start("a")

	task := h.store.Task("a")
	if len(task.Sessions) != 2 {
		t.Fatalf("restart should append a session, got %d", len(task.Sessions))
	}
	if !task.Sessions[1].Open() {
		t.Fatal("second session should be the running one")
	}
}

func TestStartUnknownTask(t *testing.T) {
	h := newHarness(nil)
	if ch := h.ctrl.Start("nope"); ch.Applied() {
		t.Fatalf("Start(nope) = %+v, want none", ch)
	}
	if h.mutated != 0 {
		t.Fatal("rejected operation must not persist")
	}
}

func TestStartSameMillisecondDropsSession(t *testing.T) {
	// A frozen clock makes the toggle instant; the unclosable zero-length
	// session is dropped rather than left open.
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	frozen := time.Date(2026, time.August, 26, 9, 0, 0, 0, time.Local)
	h.ctrl.Now = func() time.Time { return frozen }

	h.ctrl.Start("a")
	ch := h.ctrl.Start("a")
	if ch.Kind != ChangeStopped {
		t.Fatalf("instant toggle = %+v", ch)
	}
	if n := len(h.store.Task("a").Sessions); n != 0 {
		t.Fatalf("zero-length session kept: %d", n)
	}
}

func TestStartSameMillisecondSwitch(t *testing.T) {
	// Switching tasks on a frozen clock cannot close the first session, so
	// the zero-length session is dropped; never two open sessions at once.
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{
		{ID: "a", Name: "writing"},
		{ID: "b", Name: "reading"},
	}})
	frozen := time.Date(2026, time.August, 26, 9, 0, 0, 0, time.Local)
	h.ctrl.Now = func() time.Time { return frozen }

	h.ctrl.Start("a")
	ch := h.ctrl.Start("b")
	if ch.Kind != ChangeStarted || ch.TaskID != "b" {
		t.Fatalf("instant switch = %+v", ch)
	}
	if n := openCount(h.store.Dataset()); n != 1 {
		t.Fatalf("open sessions after instant switch = %d, want 1", n)
	}
	if h.store.Running().ID != "b" {
		t.Fatal("b should be the running task")
	}
	if n := len(h.store.Task("a").Sessions); n != 0 {
		t.Fatalf("a's zero-length session kept: %d", n)
	}
}

func TestStopCurrentSameMillisecond(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	frozen := time.Date(2026, time.August, 26, 9, 0, 0, 0, time.Local)
	h.ctrl.Now = func() time.Time { return frozen }

	h.ctrl.Start("a")
	ch := h.ctrl.StopCurrent()
	if ch.Kind != ChangeStopped || ch.TaskID != "a" {
		t.Fatalf("instant stop = %+v", ch)
	}
	if h.store.Running() != nil {
		t.Fatal("still running after instant stop")
	}
	if n := len(h.store.Task("a").Sessions); n != 0 {
		t.Fatalf("zero-length session kept: %d", n)
	}
}

func TestStartByName(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "Writing"}}})

	// Case-insensitive match starts the existing task.
	ch := h.ctrl.StartByName("wRiTing")
	if ch.Kind != ChangeStarted || ch.TaskID != "a" {
		t.Fatalf("StartByName(existing) = %+v", ch)
	}

	// No match creates a task at the front and starts it.
	ch = h.ctrl.StartByName("  new thing  ")
	if ch.Kind != ChangeCreated {
		t.Fatalf("StartByName(new) = %+v", ch)
	}
	ds := h.store.Dataset()
	if ds.Tasks[0].Name != "new thing" {
		t.Fatalf("created task = %+v", ds.Tasks[0])
	}
	if openCount(ds) != 1 || h.store.Running().ID != ds.Tasks[0].ID {
		t.Fatal("created task should be the single running one")
	}

	if ch := h.ctrl.StartByName("   "); ch.Applied() {
		t.Fatal("blank name must be rejected")
	}
}

func TestStopCurrent(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	if ch := h.ctrl.StopCurrent(); ch.Applied() {
		t.Fatal("idle stop should be a no-op")
	}

	h.ctrl.Start("a")
	ch := h.ctrl.StopCurrent()
	if ch.Kind != ChangeStopped || ch.TaskID != "a" {
		t.Fatalf("StopCurrent = %+v", ch)
	}
	if h.store.Running() != nil {
		t.Fatal("still running after stop")
	}
}

func TestDeleteTask(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	h.ctrl.Start("a")
	h.mutated = 0

	ch := h.ctrl.DeleteTask("a")
	if ch.Kind != ChangeTaskDeleted {
		t.Fatalf("DeleteTask = %+v", ch)
	}
	if len(h.confirm.prompts) != 1 || !strings.Contains(h.confirm.prompts[0], `"writing"`) {
		t.Fatalf("prompts = %v", h.confirm.prompts)
	}
	if len(h.store.Dataset().Tasks) != 0 {
		t.Fatal("task survived deletion")
	}
	// Deleting the running task returns the tracker to idle.
	if h.store.Running() != nil {
		t.Fatal("running task not cleared")
	}
	if h.mutated != 1 {
		t.Fatalf("mutations = %d", h.mutated)
	}
}

func TestDeleteTaskDeclined(t *testing.T) {
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}})
	h.confirm.answer = false

	if ch := h.ctrl.DeleteTask("a"); ch.Applied() {
		t.Fatalf("declined delete = %+v", ch)
	}
	if len(h.store.Dataset().Tasks) != 1 {
		t.Fatal("declined delete removed the task")
	}
	if h.mutated != 0 {
		t.Fatal("declined delete must not persist")
	}
}

func TestDeleteSession(t *testing.T) {
	task := &domain.Task{ID: "a", Name: "writing", Sessions: []*domain.Session{
		domain.ClosedSession(1000, 2000),
	}}
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{task}})

	if ch := h.ctrl.DeleteSession("a", 999); ch.Applied() {
		t.Fatal("missing session start must be rejected before confirming")
	}
	if len(h.confirm.prompts) != 0 {
		t.Fatal("no prompt expected for a missing referent")
	}

	ch := h.ctrl.DeleteSession("a", 1000)
	if ch.Kind != ChangeSessionDeleted {
		t.Fatalf("DeleteSession = %+v", ch)
	}
	if len(task.Sessions) != 0 {
		t.Fatal("session survived deletion")
	}
}

func TestEditSession(t *testing.T) {
	start := time.Date(2026, time.August, 25, 9, 0, 0, 0, time.Local).UnixMilli()
	end := time.Date(2026, time.August, 25, 10, 0, 0, 0, time.Local).UnixMilli()
	task := &domain.Task{ID: "a", Name: "writing", Sessions: []*domain.Session{
		domain.ClosedSession(start, end),
	}}
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{task}})

	ch := h.ctrl.EditSession("a", start, "14:00", "15:30")
	if ch.Kind != ChangeSessionEdited {
		t.Fatalf("EditSession = %+v", ch)
	}
	s := task.Sessions[0]
	if timeutil.FormatClock(s.Start) != "14:00" || timeutil.FormatClock(*s.End) != "15:30" {
		t.Fatalf("edited times = %s, %s", timeutil.FormatClock(s.Start), timeutil.FormatClock(*s.End))
	}
	// The day never changes, only the clock.
	if timeutil.DayKey(s.Start) != "2026-08-25" {
		t.Fatalf("edit moved the day: %s", timeutil.DayKey(s.Start))
	}
}

func TestEditSessionRejections(t *testing.T) {
	start := time.Date(2026, time.August, 25, 9, 0, 0, 0, time.Local).UnixMilli()
	end := time.Date(2026, time.August, 25, 10, 0, 0, 0, time.Local).UnixMilli()
	task := &domain.Task{ID: "a", Name: "writing", Sessions: []*domain.Session{
		domain.ClosedSession(start, end),
		domain.NewOpenSession(end + 1000),
	}}
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{task}})

	cases := []struct {
		name                 string
		sessionStart         int64
		startClock, endClock string
	}{
		{"inverted range", start, "15:00", "14:00"},
		{"zero-length", start, "14:00", "14:00"},
		{"bad clock", start, "oops", "15:00"},
		{"open session", end + 1000, "14:00", "15:00"},
		{"missing session", 42, "14:00", "15:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if ch := h.ctrl.EditSession("a", tc.sessionStart, tc.startClock, tc.endClock); ch.Applied() {
				t.Fatalf("edit applied: %+v", ch)
			}
		})
	}
	s := task.Sessions[0]
	if s.Start != start || *s.End != end {
		t.Fatal("rejected edits must keep the prior values")
	}
	if h.mutated != 0 {
		t.Fatal("rejected edits must not persist")
	}
}

func TestDeleteDay(t *testing.T) {
	day25 := func(h, m int) int64 {
		return time.Date(2026, time.August, 25, h, m, 0, 0, time.Local).UnixMilli()
	}
	day26 := time.Date(2026, time.August, 26, 9, 0, 0, 0, time.Local).UnixMilli()
	task := &domain.Task{ID: "a", Name: "writing", Sessions: []*domain.Session{
		domain.ClosedSession(day25(9, 0), day25(10, 0)),
		domain.ClosedSession(day25(14, 0), day25(15, 0)),
		domain.ClosedSession(day26, day26+1000),
	}}
	h := newHarness(&domain.Dataset{Tasks: []*domain.Task{task}})

	ch := h.ctrl.DeleteDay("a", "2026-08-25")
	if ch.Kind != ChangeDayDeleted {
		t.Fatalf("DeleteDay = %+v", ch)
	}
	if len(task.Sessions) != 1 || task.Sessions[0].Start != day26 {
		t.Fatalf("sessions after day delete: %+v", task.Sessions)
	}
	if h.mutated != 1 {
		t.Fatalf("mutations = %d", h.mutated)
	}

	// A day with nothing to remove is rejected before the prompt, like any
	// other missing referent.
	if ch := h.ctrl.DeleteDay("a", "2026-08-20"); ch.Applied() {
		t.Fatalf("empty day delete = %+v", ch)
	}
	if h.mutated != 1 {
		t.Fatal("empty day delete must not persist")
	}
	if len(h.confirm.prompts) != 1 {
		t.Fatalf("prompts = %v, want none for an empty day", h.confirm.prompts)
	}
}

// TestTrackingScenario walks a realistic sequence end to end with a stepped
// clock: create, switch, stop, and check the dataset shape at each point.
func TestTrackingScenario(t *testing.T) {
	h := newHarness(nil)

	h.ctrl.StartByName("emails")
	h.ctrl.StartByName("deep work")
	if h.store.Running().Name != "deep work" {
		t.Fatal("deep work should be running")
	}
	if openCount(h.store.Dataset()) != 1 {
		t.Fatal("exactly one open session expected")
	}

	h.ctrl.StartByName("emails")
	if h.store.Running().Name != "emails" {
		t.Fatal("emails should be running again")
	}
	emails := h.store.TaskNamed("emails")
	if len(emails.Sessions) != 2 {
		t.Fatalf("emails sessions = %d, want a fresh one per start", len(emails.Sessions))
	}

	h.ctrl.StopCurrent()
	if h.store.Running() != nil {
		t.Fatal("tracker should be idle")
	}
	if openCount(h.store.Dataset()) != 0 {
		t.Fatal("no session may remain open")
	}
	if h.mutated != 4 {
		t.Fatalf("mutations = %d, want 4", h.mutated)
	}
}
