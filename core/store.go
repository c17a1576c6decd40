package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/remitstream/remitcore/contracts"
)

// runEntry tracks one in-flight or finished workflow, keyed by the
// intent's reference id.
type runEntry struct {
	mu        sync.RWMutex
	result    *contracts.WorkflowResult
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	createdAt time.Time
	updatedAt time.Time
}

// runStore is the thread-safe in-memory index of workflow runs.
type runStore struct {
	mu   sync.RWMutex
	runs map[string]*runEntry
}

func newRunStore() *runStore {
	return &runStore{runs: make(map[string]*runEntry)}
}

// create registers a new run. A reference already tracked and not yet
// finished is rejected so one reference cannot run twice concurrently.
func (s *runStore) create(reference string, cancel context.CancelFunc) (*runEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.runs[reference]; ok && !isDone(existing) {
		return nil, fmt.Errorf("payment %s already running: %w", reference, contracts.ErrBusy)
	}
	entry := &runEntry{
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	s.runs[reference] = entry
	return entry, nil
}

// markDone records the terminal outcome and releases waiters.
func (s *runStore) markDone(reference string, result *contracts.WorkflowResult, err error) {
	s.mu.RLock()
	entry, ok := s.runs[reference]
	s.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.result = result
	entry.err = err
	entry.updatedAt = time.Now()
	entry.mu.Unlock()

	select {
	case <-entry.done:
	default:
		close(entry.done)
	}
}

// Snapshot is the externally visible state of one run.
type Snapshot struct {
	Reference string
	Running   bool
	Result    *contracts.WorkflowResult
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// snapshot returns a copy of the run's current state.
func (s *runStore) snapshot(reference string) (*Snapshot, bool) {
	s.mu.RLock()
	entry, ok := s.runs[reference]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return &Snapshot{
		Reference: reference,
		Running:   !isDone(entry),
		Result:    entry.result,
		Err:       entry.err,
		CreatedAt: entry.createdAt,
		UpdatedAt: entry.updatedAt,
	}, true
}

// abort cancels a run if it is still in flight. Idempotent.
func (s *runStore) abort(reference string) error {
	s.mu.RLock()
	entry, ok := s.runs[reference]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("payment %s not tracked: %w", reference, contracts.ErrValidationFailed)
	}
	if isDone(entry) {
		return nil
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	return nil
}

// cancelAll cancels every in-flight run. Returns how many were live.
func (s *runStore) cancelAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cancelled := 0
	for _, entry := range s.runs {
		if isDone(entry) {
			continue
		}
		if entry.cancel != nil {
			entry.cancel()
		}
		cancelled++
	}
	return cancelled
}

// waitAll blocks until every run finishes or the timeout elapses.
// Returns the number of runs still active.
func (s *runStore) waitAll(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.RLock()
		active := 0
		var pending chan struct{}
		for _, entry := range s.runs {
			if !isDone(entry) {
				active++
				if pending == nil {
					pending = entry.done
				}
			}
		}
		s.mu.RUnlock()

		if active == 0 {
			return 0
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return active
		}

		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return active
		case <-pending:
			timer.Stop()
		}
	}
}

// prune removes finished runs older than the retention window.
func (s *runStore) prune(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for reference, entry := range s.runs {
		if !isDone(entry) {
			continue
		}
		entry.mu.RLock()
		stale := entry.updatedAt.Before(cutoff)
		entry.mu.RUnlock()
		if stale {
			delete(s.runs, reference)
			removed++
		}
	}
	return removed
}

func isDone(entry *runEntry) bool {
	select {
	case <-entry.done:
		return true
	default:
		return false
	}
}
