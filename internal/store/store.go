// Package store holds the authoritative in-memory dataset for one context.
// A Store is explicitly owned and injected; tests and parallel UI contexts
// each get their own instance. Mutation goes through the usecase controller;
// every other component treats the dataset as read-only.
package store

import (
	"strings"

	"tikkit/internal/domain"
)

// Store wraps a dataset with the structural operations the controller needs.
// It does not enforce the single-open-session invariant (the controller
// does), but it refuses to keep a session whose end is not strictly after
// its start.
type Store struct {
	ds *domain.Dataset
}

// New returns a store over ds, or over an empty dataset when ds is nil.
func New(ds *domain.Dataset) *Store {
	if ds == nil {
		ds = domain.EmptyDataset()
	}
	return &Store{ds: ds}
}

// Dataset returns the current dataset. Callers outside the controller must
// not mutate it.
func (st *Store) Dataset() *domain.Dataset { return st.ds }

// Replace swaps in a whole new dataset. Used by sync: snapshots from another
// context or from the remote store are never merged.
func (st *Store) Replace(ds *domain.Dataset) {
	if ds == nil {
		ds = domain.EmptyDataset()
	}
	st.ds = ds
}

// Task returns the task with the given id, or nil.
func (st *Store) Task(id string) *domain.Task {
	for _, t := range st.ds.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskNamed returns the task whose name matches case-insensitively, or nil.
func (st *Store) TaskNamed(name string) *domain.Task {
	for _, t := range st.ds.Tasks {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// Running returns the task owning the open session, or nil when idle. The
// controller keeps open sessions to at most one dataset-wide; the zero case
// is still answered gracefully.
func (st *Store) Running() *domain.Task {
	for _, t := range st.ds.Tasks {
		if t.OpenSession() != nil {
			return t
		}
	}
	return nil
}

// AddTaskFront inserts a new task at the front of the dataset, matching the
// newest-first ordering of the active list.
func (st *Store) AddTaskFront(t *domain.Task) {
	st.ds.Tasks = append([]*domain.Task{t}, st.ds.Tasks...)
}

// RemoveTask removes the task and all its sessions. Reports whether anything
// was removed.
func (st *Store) RemoveTask(id string) bool {
	for i, t := range st.ds.Tasks {
		if t.ID == id {
			st.ds.Tasks = append(st.ds.Tasks[:i], st.ds.Tasks[i+1:]...)
			return true
		}
	}
	return false
}

// OpenSession appends a fresh running session to the task and returns it.
func (st *Store) OpenSession(t *domain.Task, startMs int64) *domain.Session {
	s := domain.NewOpenSession(startMs)
	t.Sessions = append(t.Sessions, s)
	return s
}

// CloseSession gives an open session its end. Refused (returning false, with
// the session left open) when endMs is not strictly after the start.
func (st *Store) CloseSession(s *domain.Session, endMs int64) bool {
	if s == nil || endMs <= s.Start {
		return false
	}
	s.End = &endMs
	return true
}

// SetSessionTimes rewrites a closed session's range. Refused when the new end
// is not strictly after the new start; the prior values are retained.
func (st *Store) SetSessionTimes(s *domain.Session, startMs, endMs int64) bool {
	if s == nil || endMs <= startMs {
		return false
	}
	s.Start = startMs
	s.End = &endMs
	return true
}

// RemoveSession deletes the task's session with the given start timestamp.
// Removing the open session is allowed and silently ends tracking.
func (st *Store) RemoveSession(t *domain.Task, startMs int64) bool {
	for i, s := range t.Sessions {
		if s.Start == startMs {
			t.Sessions = append(t.Sessions[:i], t.Sessions[i+1:]...)
			return true
		}
	}
	return false
}
