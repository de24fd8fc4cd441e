// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// newTestStore creates an in-memory run store torn down with the test.
func newTestStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	st, err := store.NewBadgerStore(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestRouter creates a Gin router with the specified handler for testing.
func createTestRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	switch method {
	case "POST":
		router.POST(path, handler)
	case "GET":
		router.GET(path, handler)
	case "DELETE":
		router.DELETE(path, handler)
	}
	return router
}

// performRequest executes an HTTP request against the test router.
func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleSharpen Tests
// =============================================================================

func TestHandleSharpen_Success(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	body := datatypes.SharpenRequest{
		PValues: []float64{0.001, 0.002, 0.8},
		Label:   "pilot",
	}
	w := performRequest(router, "POST", "/v1/sharpen", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.SharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.QValues, 3)
	assert.Equal(t, 3, resp.Hypotheses)
	assert.Equal(t, 0.001, resp.Step)
	assert.NotEmpty(t, resp.RunID)
	for i, q := range resp.QValues {
		assert.GreaterOrEqual(t, q, 0.0, "q-value %d", i)
		assert.LessOrEqual(t, q, 1.0, "q-value %d", i)
	}
}

func TestHandleSharpen_PersistedRunRetrievable(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	body := datatypes.SharpenRequest{
		PValues: []float64{0.01, 0.2, 0.9},
		Label:   "retained",
	}
	w := performRequest(router, "POST", "/v1/sharpen", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.SharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	rec, err := st.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "retained", rec.Label)
	assert.Equal(t, "api", rec.Source)
	assert.Equal(t, 3, rec.Hypotheses)
	assert.Equal(t, resp.QValues, rec.QValues)
}

func TestHandleSharpen_NoPersist(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	persist := false
	body := datatypes.SharpenRequest{
		PValues: []float64{0.01, 0.2},
		Persist: &persist,
	}
	w := performRequest(router, "POST", "/v1/sharpen", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.SharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.RunID)
	assert.Len(t, resp.QValues, 2)

	n, err := st.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHandleSharpen_InvalidJSON(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	req, _ := http.NewRequest("POST", "/v1/sharpen", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestHandleSharpen_EmptyPValues(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	body := datatypes.SharpenRequest{PValues: []float64{}}
	w := performRequest(router, "POST", "/v1/sharpen", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSharpen_PValueOutOfRange(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	body := datatypes.SharpenRequest{PValues: []float64{0.5, 1.5}}
	w := performRequest(router, "POST", "/v1/sharpen", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSharpen_StepNotOnGrid(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	body := datatypes.SharpenRequest{
		PValues: []float64{0.01, 0.2},
		Step:    0.0007,
	}
	w := performRequest(router, "POST", "/v1/sharpen", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSharpen_CustomStepEchoed(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen", HandleSharpen(st, nil))

	body := datatypes.SharpenRequest{
		PValues: []float64{0.01, 0.2, 0.7},
		Step:    0.05,
	}
	w := performRequest(router, "POST", "/v1/sharpen", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.SharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.05, resp.Step)
}

// =============================================================================
// HandleBatchSharpen Tests
// =============================================================================

func TestHandleBatchSharpen_Success(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen/batch", HandleBatchSharpen(st, nil))

	body := datatypes.BatchSharpenRequest{
		Datasets: []datatypes.BatchDataset{
			{Name: "alpha", PValues: []float64{0.001, 0.02, 0.9}},
			{Name: "beta", PValues: []float64{0.5, 0.6}},
		},
	}
	w := performRequest(router, "POST", "/v1/sharpen/batch", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.BatchSharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, 2, resp.Completed)
	assert.Equal(t, 0, resp.Failed)

	byName := map[string]datatypes.BatchOutcome{}
	for _, out := range resp.Outcomes {
		byName[out.Name] = out
	}
	assert.Len(t, byName["alpha"].QValues, 3)
	assert.Len(t, byName["beta"].QValues, 2)
	assert.NotEmpty(t, byName["alpha"].RunID)
	assert.NotEmpty(t, byName["beta"].RunID)

	n, err := st.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandleBatchSharpen_NoPersist(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen/batch", HandleBatchSharpen(st, nil))

	persist := false
	body := datatypes.BatchSharpenRequest{
		Datasets: []datatypes.BatchDataset{
			{Name: "alpha", PValues: []float64{0.001, 0.02}},
		},
		Persist: &persist,
	}
	w := performRequest(router, "POST", "/v1/sharpen/batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.BatchSharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Empty(t, resp.Outcomes[0].RunID)

	n, err := st.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHandleBatchSharpen_NoDatasets(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen/batch", HandleBatchSharpen(st, nil))

	body := datatypes.BatchSharpenRequest{Datasets: []datatypes.BatchDataset{}}
	w := performRequest(router, "POST", "/v1/sharpen/batch", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatchSharpen_InvalidJSON(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen/batch", HandleBatchSharpen(st, nil))

	req, _ := http.NewRequest("POST", "/v1/sharpen/batch", bytes.NewBufferString("[["))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatchSharpen_TiedInputsShareQValues(t *testing.T) {
	st := newTestStore(t)
	router := createTestRouter("POST", "/v1/sharpen/batch", HandleBatchSharpen(st, nil))

	persist := false
	body := datatypes.BatchSharpenRequest{
		Datasets: []datatypes.BatchDataset{
			{Name: "ties", PValues: []float64{0.04, 0.04, 0.7}},
		},
		Persist: &persist,
	}
	w := performRequest(router, "POST", "/v1/sharpen/batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.BatchSharpenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 1)
	qvals := resp.Outcomes[0].QValues
	require.Len(t, qvals, 3)
	assert.Equal(t, qvals[0], qvals[1])
}
