package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/jobs"
	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

type stubRunner struct {
	mu      sync.Mutex
	seeds   []map[string]any
	fail    error
	release chan struct{}
}

func (s *stubRunner) Reply(ctx context.Context, runID, email string, seed map[string]any) (workflow.Result, error) {
	s.mu.Lock()
	s.seeds = append(s.seeds, seed)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return workflow.Result{RunID: runID, Status: graph.StatusCancelled}, ctx.Err()
		}
	}
	if s.fail != nil {
		return workflow.Result{
			RunID:      runID,
			Status:     graph.StatusFailed,
			FailedNode: workflow.NodeDraft,
			Error:      s.fail.Error(),
			Report:     workflow.Report{InitialEmail: email, DraftEmail: "partial"},
		}, s.fail
	}
	return workflow.Result{
		RunID:  runID,
		Status: graph.StatusCompleted,
		Report: workflow.Report{InitialEmail: email, EmailCategory: "customer_feedback", FinalEmail: "Thanks!", NumSteps: 5},
	}, nil
}

func newTestHandler(t *testing.T, r jobs.Runner, opts Options) (http.Handler, *jobs.Manager) {
	t.Helper()
	m, err := jobs.NewManager(r, jobs.NewMemoryStore(), jobs.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return NewHandler(m, opts), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJob(t *testing.T, rr *httptest.ResponseRecorder) jobs.Job {
	t.Helper()
	var job jobs.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job), rr.Body.String())
	return job
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &stubRunner{}, Options{})
	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

func TestHealth_Unavailable(t *testing.T) {
	h, _ := newTestHandler(t, &stubRunner{}, Options{
		Health: func(context.Context) error { return errors.New("redis down") },
	})
	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "redis down")
}

func TestCreateReply(t *testing.T) {
	r := &stubRunner{}
	h, _ := newTestHandler(t, r, Options{})

	rr := do(t, h, http.MethodPost, "/v1/replies", `{"email": "Love the product", "customer_id": "c-1", "seed": {"channel": "web"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	job := decodeJob(t, rr)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "Thanks!", job.Result.Report.FinalEmail)
	assert.Equal(t, 5, job.Result.Report.NumSteps)

	require.Len(t, r.seeds, 1)
	assert.Equal(t, map[string]any{"customer_id": "c-1", "channel": "web"}, r.seeds[0])
}

func TestCreateReply_Failure(t *testing.T) {
	h, _ := newTestHandler(t, &stubRunner{fail: errors.New("routing failed")}, Options{})

	rr := do(t, h, http.MethodPost, "/v1/replies", `{"email": "hi"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	job := decodeJob(t, rr)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, workflow.NodeDraft, job.Result.FailedNode)
	assert.Equal(t, "partial", job.Result.Report.DraftEmail)
	assert.Equal(t, "routing failed", job.Error)
}

func TestCreateReply_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, &stubRunner{}, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"email": `},
		{"missing email", `{"seed": {}}`},
		{"blank email", `{"email": "   "}`},
		{"email not a string", `{"email": 42}`},
		{"reserved seed", `{"email": "hi", "seed": {"num_steps": 9}}`},
		{"reserved top-level field", `{"email": "hi", "initial_email": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/replies", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestJobsLifecycle(t *testing.T) {
	r := &stubRunner{release: make(chan struct{})}
	h, _ := newTestHandler(t, r, Options{})

	rr := do(t, h, http.MethodPost, "/v1/jobs", `{"email": "Where is my order?"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	job := decodeJob(t, rr)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Equal(t, "/v1/jobs/"+job.ID, rr.Header().Get("Location"))

	close(r.release)
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/jobs/"+job.ID, "")
		return rr.Code == http.StatusOK && decodeJob(t, rr).Status == jobs.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	rr = do(t, h, http.MethodGet, "/v1/jobs?limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, job.ID, list.Jobs[0].ID)

	rr = do(t, h, http.MethodDelete, "/v1/jobs/"+job.ID, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCancelJob(t *testing.T) {
	r := &stubRunner{release: make(chan struct{})}
	h, m := newTestHandler(t, r, Options{})

	rr := do(t, h, http.MethodPost, "/v1/jobs", `{"email": "hello"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	job := decodeJob(t, rr)

	require.Eventually(t, func() bool {
		j, err := m.Get(context.Background(), job.ID)
		return err == nil && j.Status == jobs.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	rr = do(t, h, http.MethodDelete, "/v1/jobs/"+job.ID, "")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		j, err := m.Get(context.Background(), job.ID)
		return err == nil && j.Status == jobs.StatusCancelled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestJobNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &stubRunner{}, Options{})

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/jobs/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/jobs/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/jobs?limit=x", "").Code)
}

func TestGraphAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(registry)
	metrics.RunStarted()

	h, _ := newTestHandler(t, &stubRunner{}, Options{
		Graph:    func() string { return "graph TD\n    a((\"a\"))\n" },
		Gatherer: registry,
	})

	rr := do(t, h, http.MethodGet, "/v1/graph", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "graph TD"))

	rr = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "inflight_runs")
}

func TestGraph_NotConfigured(t *testing.T) {
	h, _ := newTestHandler(t, &stubRunner{}, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/graph", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
}
