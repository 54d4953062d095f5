package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	return s, dir
}

func TestFileStore_RequiresDirectory(t *testing.T) {
	_, err := NewFileStore("", zap.NewNop())
	assert.Error(t, err)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	task := newTestTask("t1")
	task.History = []workflow.PhaseResult{
		{Phase: workflow.PhaseAnalyze, Succeeded: true, Metrics: map[string]float64{workflow.MetricCoverage: 90}},
	}
	require.NoError(t, s.Save(ctx, task))

	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.Plan, got.Plan)
	require.Len(t, got.History, 1)
	assert.Equal(t, float64(90), got.History[0].Metrics[workflow.MetricCoverage])
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTestTask("t1")))
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	got, err := reopened.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
}

func TestFileStore_LoadNotFound(t *testing.T) {
	s, _ := newFileStore(t)

	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, newTestTask("t1")))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, entry.Name()[0] == '.', "leftover temp file %s", entry.Name())
	}
}

func TestFileStore_ArchiveMovesRecord(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	task := newTestTask("t1")
	task.Status = workflow.StatusCompleted
	require.NoError(t, s.Save(ctx, task))
	require.NoError(t, s.Archive(ctx, task))

	_, err := os.Stat(filepath.Join(dir, "t1.json"))
	assert.True(t, os.IsNotExist(err), "active record must be removed after archive")
	_, err = os.Stat(filepath.Join(dir, "archive", "t1.json"))
	assert.NoError(t, err)

	// Archived records stay loadable.
	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

func TestFileStore_ArchiveIsWriteOnce(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	task := newTestTask("t1")
	task.Status = workflow.StatusFailed
	require.NoError(t, s.Save(ctx, task))
	require.NoError(t, s.Archive(ctx, task))

	assert.ErrorIs(t, s.Archive(ctx, task), ErrArchivedTaskImmutable)
	assert.ErrorIs(t, s.Save(ctx, task), ErrArchivedTaskImmutable)
	assert.ErrorIs(t, s.AppendEscalation(ctx, "t1", workflow.EscalationEvent{}), ErrArchivedTaskImmutable)
}

func TestFileStore_ArchiveRequiresTerminalStatus(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	task := newTestTask("t1")
	require.NoError(t, s.Save(ctx, task))
	assert.Error(t, s.Archive(ctx, task))
}

func TestFileStore_ListIncludesArchived(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	active := newTestTask("active")
	require.NoError(t, s.Save(ctx, active))

	done := newTestTask("done")
	done.Status = workflow.StatusCompleted
	require.NoError(t, s.Save(ctx, done))
	require.NoError(t, s.Archive(ctx, done))

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestFileStore_AppendEscalation(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTestTask("t1")))
	require.NoError(t, s.AppendEscalation(ctx, "t1", workflow.EscalationEvent{
		FromLevel: workflow.Level2,
		ToLevel:   workflow.Level3,
	}))

	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got.EscalationLog, 1)

	assert.ErrorIs(t, s.AppendEscalation(ctx, "missing", workflow.EscalationEvent{}), ErrTaskNotFound)
}
