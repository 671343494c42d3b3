package engine

import (
	"sync"
	"time"
)

// Outcome of one candidate
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Item is the state of one candidate of a run
type Item struct {
	Position int
	PID      string
	Action   Action
	Outcome  Outcome
	Err      error
}

// Summary counts item outcomes
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunState tracks one run for logging and the run log. It is not read back
// by later runs.
type RunState struct {
	ID         string
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time

	mu    sync.Mutex
	items []Item
	done  int
}

func newRunState(id string, mode Mode, candidates []string, now time.Time) *RunState {
	items := make([]Item, len(candidates))
	for i, pid := range candidates {
		items[i] = Item{Position: i, PID: pid, Outcome: OutcomePending}
	}
	return &RunState{ID: id, Mode: mode, StartedAt: now, items: items}
}

// Total is the number of candidates
func (s *RunState) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Done is the number of candidates with a final outcome
func (s *RunState) Done() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Candidates returns the candidate identifiers in run order
func (s *RunState) Candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make([]string, len(s.items))
	for i, it := range s.items {
		pids[i] = it.PID
	}
	return pids
}

// finish sets the final outcome of the item at pos and returns it
func (s *RunState) finish(pos int, action Action, outcome Outcome, err error) Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := &s.items[pos]
	if it.Outcome == OutcomePending {
		s.done++
	}
	it.Action = action
	it.Outcome = outcome
	it.Err = err
	return *it
}

// Items returns a copy of every item in candidate order
func (s *RunState) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

// Summary counts the outcomes so far. Pending items are not counted.
func (s *RunState) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{Total: len(s.items)}
	for _, it := range s.items {
		switch it.Outcome {
		case OutcomeSucceeded:
			sum.Succeeded++
		case OutcomeFailed:
			sum.Failed++
		case OutcomeSkipped:
			sum.Skipped++
		}
	}
	return sum
}
