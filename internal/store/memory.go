package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// MemoryStore keeps task records in process memory. Writes are serialized
// per task id; distinct ids proceed concurrently.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*workflow.Task
	locks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*workflow.Task),
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-id mutex, creating it on first use.
func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Save overwrites the task's snapshot.
func (s *MemoryStore) Save(_ context.Context, task *workflow.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("save: task id is required")
	}

	l := s.lockFor(task.ID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	existing := s.tasks[task.ID]
	s.mu.RUnlock()
	if existing != nil && existing.Archived {
		return fmt.Errorf("save %s: %w", task.ID, ErrArchivedTaskImmutable)
	}

	snapshot := task.Clone()
	s.mu.Lock()
	s.tasks[task.ID] = snapshot
	s.mu.Unlock()
	return nil
}

// Load returns a snapshot of the task.
func (s *MemoryStore) Load(_ context.Context, id string) (*workflow.Task, error) {
	s.mu.RLock()
	task, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, ErrTaskNotFound)
	}
	return task.Clone(), nil
}

// List returns snapshots of all known tasks.
func (s *MemoryStore) List(_ context.Context) ([]*workflow.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

// AppendEscalation appends an event to the task's escalation log.
func (s *MemoryStore) AppendEscalation(_ context.Context, id string, event workflow.EscalationEvent) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("append escalation %s: %w", id, ErrTaskNotFound)
	}
	if task.Archived {
		return fmt.Errorf("append escalation %s: %w", id, ErrArchivedTaskImmutable)
	}
	task.EscalationLog = append(task.EscalationLog, event)
	return nil
}

// Archive writes the task's terminal, write-once record.
func (s *MemoryStore) Archive(_ context.Context, task *workflow.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("archive: task id is required")
	}
	if !task.Status.Terminal() {
		return fmt.Errorf("archive %s: status %s is not terminal", task.ID, task.Status)
	}

	l := s.lockFor(task.ID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[task.ID]; ok && existing.Archived {
		return fmt.Errorf("archive %s: %w", task.ID, ErrArchivedTaskImmutable)
	}
	snapshot := task.Clone()
	snapshot.Archived = true
	s.tasks[task.ID] = snapshot
	return nil
}

// Close releases store resources.
func (s *MemoryStore) Close() error {
	return nil
}
