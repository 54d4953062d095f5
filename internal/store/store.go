// Package store persists task state. One record per task id holds the full
// task snapshot plus its append-only escalation log; archived records are
// write-once.
package store

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

var (
	// ErrTaskNotFound indicates no record exists for the id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrArchivedTaskImmutable indicates a write against an archived record.
	ErrArchivedTaskImmutable = errors.New("archived task is immutable")
)

// Store is the durable record of task state. Save overwrites the full
// snapshot and is all-or-nothing per call: a crash between phases loses at
// most the in-flight phase result, never prior history. Implementations
// must serialize writes per task id and support concurrent access across
// distinct ids.
type Store interface {
	// Save overwrites the task's snapshot. Fails with
	// ErrArchivedTaskImmutable once the record is archived.
	Save(ctx context.Context, task *workflow.Task) error

	// Load returns a snapshot of the task. Archived records remain loadable.
	Load(ctx context.Context, id string) (*workflow.Task, error)

	// List returns snapshots of all known tasks, including archived ones.
	List(ctx context.Context) ([]*workflow.Task, error)

	// AppendEscalation appends an event to the task's escalation log.
	AppendEscalation(ctx context.Context, id string, event workflow.EscalationEvent) error

	// Archive writes the task's terminal record. Called exactly once, when
	// the task reaches completed or failed; the record is immutable after.
	Archive(ctx context.Context, task *workflow.Task) error

	// Close releases store resources.
	Close() error
}
