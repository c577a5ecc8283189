package domain

// Session is a single tracked interval on a task. Timestamps are epoch
// milliseconds. End == nil means the session is still running; the JSON form
// keeps a literal null so the wire shape matches the stored dataset exactly.
type Session struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end"`
}

// Open reports whether the session has no end yet.
func (s *Session) Open() bool { return s.End == nil }

// DurationMs returns the elapsed time of the session in milliseconds, using
// nowMs for an open session. Never negative for a validly stored session.
func (s *Session) DurationMs(nowMs int64) int64 {
	end := nowMs
	if s.End != nil {
		end = *s.End
	}
	return end - s.Start
}

// NewOpenSession returns a running session started at startMs.
func NewOpenSession(startMs int64) *Session {
	return &Session{Start: startMs}
}

// ClosedSession returns a finished session. It does not validate the range;
// the store refuses to keep a session whose end is not after its start.
func ClosedSession(startMs, endMs int64) *Session {
	return &Session{Start: startMs, End: &endMs}
}

// Task is a named unit of work with its full session log. The session order
// carries no meaning; sessions are identified by their start timestamp.
type Task struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Sessions []*Session `json:"sessions"`
}

// OpenSession returns the task's running session, or nil.
func (t *Task) OpenSession() *Session {
	for _, s := range t.Sessions {
		if s.Open() {
			return s
		}
	}
	return nil
}

// SessionAt returns the session whose start equals startMs, or nil.
func (t *Task) SessionAt(startMs int64) *Session {
	for _, s := range t.Sessions {
		if s.Start == startMs {
			return s
		}
	}
	return nil
}

// Dataset is the root object: every task the user has. It is the unit of
// persistence and of cross-context broadcast; sync replaces it wholesale.
type Dataset struct {
	Tasks []*Task `json:"tasks"`
}

// EmptyDataset returns a dataset with no tasks, marshaling as {"tasks":[]}.
func EmptyDataset() *Dataset {
	return &Dataset{Tasks: []*Task{}}
}

// Clone returns a deep copy. Broadcast snapshots are cloned per receiver so
// contexts never share session pointers.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Tasks: make([]*Task, 0, len(d.Tasks))}
	for _, t := range d.Tasks {
		ct := &Task{ID: t.ID, Name: t.Name, Sessions: make([]*Session, 0, len(t.Sessions))}
		for _, s := range t.Sessions {
			cs := &Session{Start: s.Start}
			if s.End != nil {
				end := *s.End
				cs.End = &end
			}
			ct.Sessions = append(ct.Sessions, cs)
		}
		out.Tasks = append(out.Tasks, ct)
	}
	return out
}
