package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/orchestrator"
	"github.com/fyrsmithlabs/workflowd/internal/store"
	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// fixedClassifier pins the level so routes are deterministic.
type fixedClassifier struct {
	level workflow.ComplexityLevel
}

func (c fixedClassifier) Classify(context.Context, string, int) (workflow.Classification, error) {
	return workflow.Classification{Level: c.level, Score: int(c.level)}, nil
}

func newTestServer(t *testing.T, level workflow.ComplexityLevel) *Server {
	t.Helper()
	engine, err := orchestrator.NewEngine(nil, fixedClassifier{level: level}, nil,
		store.NewMemoryStore(), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := NewServer(engine, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func submitTask(t *testing.T, srv *Server) workflow.Task {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/tasks", SubmitTaskRequest{
		Description: "add request validation",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var task workflow.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	return task
}

func TestServer_RequiresEngineAndLogger(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestServer_SubmitTask(t *testing.T) {
	srv := newTestServer(t, workflow.Level2)

	task := submitTask(t, srv)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, workflow.Level2, task.Level)
	assert.True(t, task.Started)
}

func TestServer_SubmitTask_Validation(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/tasks", SubmitTaskRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing description")

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/tasks", SubmitTaskRequest{
		Description: "x", Mode: "turbo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown mode")
}

func TestServer_GetStatusAndList(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)
	task := submitTask(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ReportResult_DrivesWorkflow(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)
	task := submitTask(t, srv)
	path := fmt.Sprintf("/api/v1/tasks/%s/result", task.ID)

	good := map[string]float64{workflow.MetricCoverage: 95, workflow.MetricComplexity: 2}
	for _, phase := range []workflow.Phase{workflow.PhaseAnalyze, workflow.PhaseImplement, workflow.PhaseReview} {
		rec := doJSON(t, srv, http.MethodPost, path, workflow.PhaseResult{
			Phase: phase, Succeeded: true, Metrics: good,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got workflow.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, workflow.StatusCompleted, got.Status)
}

func TestServer_ReportResult_PhaseMismatchConflicts(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)
	task := submitTask(t, srv)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/result", task.ID),
		workflow.PhaseResult{Phase: workflow.PhaseReview, Succeeded: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_ReportResult_RequiresPhase(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)
	task := submitTask(t, srv)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/result", task.ID),
		workflow.PhaseResult{Succeeded: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ForceMode_AfterStartConflicts(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)
	task := submitTask(t, srv)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/mode", task.ID),
		ModeRequest{Mode: "full_auto"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Abort(t *testing.T) {
	srv := newTestServer(t, workflow.Level2)
	task := submitTask(t, srv)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/abort", task.ID),
		AbortRequest{Reason: "operator cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got workflow.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, workflow.StatusFailed, got.Status)
	assert.Equal(t, "operator cancelled", got.StatusReason)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, workflow.Level1)

	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
