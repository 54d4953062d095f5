package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// FileStore persists one JSON record per task id under a state directory.
// Active records live in the root, archived records under archive/. Writes
// go to a temp file first and are renamed into place, so a snapshot is
// all-or-nothing.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(dir, "archive"), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *FileStore) activePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) archivePath(id string) string {
	return filepath.Join(s.dir, "archive", id+".json")
}

// writeSnapshot marshals the task and renames it into place atomically.
func (s *FileStore) writeSnapshot(path string, task *workflow.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+task.ID+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

func (s *FileStore) readSnapshot(path string) (*workflow.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var task workflow.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task record %s: %w", path, err)
	}
	return &task, nil
}

// Save overwrites the task's snapshot.
func (s *FileStore) Save(_ context.Context, task *workflow.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("save: task id is required")
	}

	l := s.lockFor(task.ID)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.archivePath(task.ID)); err == nil {
		return fmt.Errorf("save %s: %w", task.ID, ErrArchivedTaskImmutable)
	}
	return s.writeSnapshot(s.activePath(task.ID), task)
}

// Load returns the task record, checking active records before archived.
func (s *FileStore) Load(_ context.Context, id string) (*workflow.Task, error) {
	for _, path := range []string{s.activePath(id), s.archivePath(id)} {
		task, err := s.readSnapshot(path)
		if err == nil {
			return task, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("load %s: %w", id, ErrTaskNotFound)
}

// List returns all task records, active and archived.
func (s *FileStore) List(_ context.Context) ([]*workflow.Task, error) {
	var out []*workflow.Task
	for _, dir := range []string{s.dir, filepath.Join(s.dir, "archive")} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read state directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			task, err := s.readSnapshot(filepath.Join(dir, entry.Name()))
			if err != nil {
				s.logger.Warn("skipping unreadable task record",
					zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			out = append(out, task)
		}
	}
	return out, nil
}

// AppendEscalation appends an event to the task's escalation log.
func (s *FileStore) AppendEscalation(_ context.Context, id string, event workflow.EscalationEvent) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.archivePath(id)); err == nil {
		return fmt.Errorf("append escalation %s: %w", id, ErrArchivedTaskImmutable)
	}

	task, err := s.readSnapshot(s.activePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("append escalation %s: %w", id, ErrTaskNotFound)
		}
		return err
	}
	task.EscalationLog = append(task.EscalationLog, event)
	return s.writeSnapshot(s.activePath(id), task)
}

// Archive moves the task's terminal record into the write-once archive.
func (s *FileStore) Archive(_ context.Context, task *workflow.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("archive: task id is required")
	}
	if !task.Status.Terminal() {
		return fmt.Errorf("archive %s: status %s is not terminal", task.ID, task.Status)
	}

	l := s.lockFor(task.ID)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.archivePath(task.ID)); err == nil {
		return fmt.Errorf("archive %s: %w", task.ID, ErrArchivedTaskImmutable)
	}

	snapshot := task.Clone()
	snapshot.Archived = true
	if err := s.writeSnapshot(s.archivePath(task.ID), snapshot); err != nil {
		return err
	}
	if err := os.Remove(s.activePath(task.ID)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove active record after archive",
			zap.String("task_id", task.ID), zap.Error(err))
	}
	return nil
}

// Close releases store resources.
func (s *FileStore) Close() error {
	return nil
}
