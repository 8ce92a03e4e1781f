// Package runlog keeps a bounded, in-memory history of notes submissions
// handled by the serve command.
package runlog

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultCapacity is the number of runs kept before the oldest is evicted.
const DefaultCapacity = 200

type Run struct {
	ID        string     `json:"id"`
	Repo      string     `json:"repo"`
	PR        int        `json:"pr"`
	Tool      string     `json:"tool"`
	SessionID string     `json:"session_id"`
	DryRun    bool       `json:"dry_run,omitempty"`
	Status    Status     `json:"status"`
	CommentID int64      `json:"comment_id,omitempty"`
	URL       string     `json:"url,omitempty"`
	Rev       int        `json:"rev,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Logs      []LogEntry `json:"logs,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, error, success
	Message   string    `json:"message"`
}

// Outcome is what a finished upsert reports back.
type Outcome struct {
	CommentID int64
	URL       string
	Rev       int
	Attempts  int
}

type Store struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	order    []string
	capacity int

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewStore creates a store holding at most capacity runs (DefaultCapacity
// when capacity <= 0).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		runs:     make(map[string]*Run),
		capacity: capacity,
		Now:      time.Now,
	}
}

// Create records a new running entry, evicting the oldest run when full.
func (s *Store) Create(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	run.Status = StatusRunning
	run.CreatedAt = now
	run.UpdatedAt = now
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	for len(s.order) > s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns a copy of the run.
func (s *Store) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return snapshot(run), true
}

// List returns copies of all runs, newest first.
func (s *Store) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, snapshot(run))
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	return runs
}

// Complete marks the run successful.
func (s *Store) Complete(id string, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = StatusCompleted
		run.CommentID = out.CommentID
		run.URL = out.URL
		run.Rev = out.Rev
		run.Attempts = out.Attempts
		run.UpdatedAt = s.Now()
		run.Logs = append(run.Logs, LogEntry{Timestamp: run.UpdatedAt, Level: "success", Message: "notes updated"})
	}
}

// Fail marks the run failed with err.
func (s *Store) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = StatusFailed
		if err != nil {
			run.Error = err.Error()
		}
		run.UpdatedAt = s.Now()
		run.Logs = append(run.Logs, LogEntry{Timestamp: run.UpdatedAt, Level: "error", Message: run.Error})
	}
}

func (s *Store) AddLog(id string, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.UpdatedAt = s.Now()
		run.Logs = append(run.Logs, LogEntry{
			Timestamp: run.UpdatedAt,
			Level:     level,
			Message:   message,
		})
	}
}

func snapshot(run *Run) Run {
	cp := *run
	cp.Logs = append([]LogEntry(nil), run.Logs...)
	return cp
}
