// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the health, explain, and history handlers

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/interpret"
)

// MockLLMClient implements interpret.LLMClient for handler testing.
type MockLLMClient struct {
	Narrative string
	Err       error
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, params interpret.GenerationParams) (string, error) {
	return m.Narrative, m.Err
}

// =============================================================================
// HandleHealth Tests
// =============================================================================

func TestHandleHealth_ReturnsOK(t *testing.T) {
	st := newTestStore(t)

	router := createTestRouter("GET", "/health", HandleHealth(st, nil, nil))
	w := performRequest(router, "GET", "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, ServiceVersion, resp["version"])
	assert.Equal(t, false, resp["history_enabled"])
	assert.Equal(t, false, resp["interpret_enabled"])
	assert.Equal(t, float64(0), resp["runs"])
}

func TestHandleHealth_CountsRuns(t *testing.T) {
	st := newTestStore(t)
	seedRun(t, st, "counted", []float64{0.1, 0.2})

	router := createTestRouter("GET", "/health", HandleHealth(st, nil, nil))
	w := performRequest(router, "GET", "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["runs"])
}

func TestHandleHealth_ReportsEnabledSubsystems(t *testing.T) {
	st := newTestStore(t)
	interp := interpret.NewInterpreter(&MockLLMClient{Narrative: "ok"}, nil)

	router := createTestRouter("GET", "/health", HandleHealth(st, nil, interp))
	w := performRequest(router, "GET", "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["interpret_enabled"])
	assert.Equal(t, false, resp["history_enabled"])
}

// =============================================================================
// HandleExplainRun Tests
// =============================================================================

func TestHandleExplainRun_Success(t *testing.T) {
	st := newTestStore(t)
	rec := seedRun(t, st, "explained", []float64{0.001, 0.02, 0.5})

	mock := &MockLLMClient{Narrative: "Two of three hypotheses survive at the 5% level."}
	interp := interpret.NewInterpreter(mock, nil)

	router := createTestRouter("POST", "/v1/runs/:id/explain", HandleExplainRun(st, interp))
	w := performRequest(router, "POST", "/v1/runs/"+rec.ID+"/explain", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, mock.Narrative, resp["narrative"])
	assert.Equal(t, rec.ID, resp["run_id"])
}

func TestHandleExplainRun_NoBackend(t *testing.T) {
	st := newTestStore(t)
	rec := seedRun(t, st, "explained", []float64{0.001, 0.02})

	router := createTestRouter("POST", "/v1/runs/:id/explain", HandleExplainRun(st, nil))
	w := performRequest(router, "POST", "/v1/runs/"+rec.ID+"/explain", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleExplainRun_DisabledBackend(t *testing.T) {
	st := newTestStore(t)
	rec := seedRun(t, st, "explained", []float64{0.001, 0.02})

	interp := interpret.NewInterpreter(nil, nil)
	router := createTestRouter("POST", "/v1/runs/:id/explain", HandleExplainRun(st, interp))
	w := performRequest(router, "POST", "/v1/runs/"+rec.ID+"/explain", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleExplainRun_RunNotFound(t *testing.T) {
	st := newTestStore(t)
	interp := interpret.NewInterpreter(&MockLLMClient{Narrative: "ok"}, nil)

	router := createTestRouter("POST", "/v1/runs/:id/explain", HandleExplainRun(st, interp))
	w := performRequest(router, "POST", "/v1/runs/no-such-run/explain", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleExplainRun_BackendError(t *testing.T) {
	st := newTestStore(t)
	rec := seedRun(t, st, "explained", []float64{0.001, 0.02})

	mock := &MockLLMClient{Err: errors.New("model unavailable")}
	interp := interpret.NewInterpreter(mock, nil)

	router := createTestRouter("POST", "/v1/runs/:id/explain", HandleExplainRun(st, interp))
	w := performRequest(router, "POST", "/v1/runs/"+rec.ID+"/explain", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// =============================================================================
// HandleHistory Tests
// =============================================================================

func TestHandleHistory_NilRecorder(t *testing.T) {
	router := createTestRouter("GET", "/v1/history", HandleHistory(nil))
	w := performRequest(router, "GET", "/v1/history", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHistory_DisabledRecorder(t *testing.T) {
	rec := history.NewRecorder(history.Config{}, nil)

	router := createTestRouter("GET", "/v1/history", HandleHistory(rec))
	w := performRequest(router, "GET", "/v1/history", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHistory_BadParameters(t *testing.T) {
	// Parameter validation happens before the backend is queried, so a
	// recorder pointed at an unreachable endpoint works here.
	rec := history.NewRecorder(history.Config{
		URL:   "http://127.0.0.1:9",
		Token: "test-token",
	}, nil)

	router := createTestRouter("GET", "/v1/history", HandleHistory(rec))

	for _, query := range []string{"window=yesterday", "window=-24h", "window=24h&limit=-1"} {
		w := performRequest(router, "GET", "/v1/history?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}
