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
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// dialBatchSocket starts a test server around the batch websocket handler
// and returns a connected client.
func dialBatchSocket(t *testing.T, st store.Store) *websocket.Conn {
	t.Helper()

	router := gin.New()
	router.GET("/v1/sharpen/ws", HandleBatchWebSocket(st, nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sharpen/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
	return ws
}

// readUntilResult consumes events until a "result" or "error" arrives,
// counting the progress events seen on the way.
func readUntilResult(t *testing.T, ws *websocket.Conn) (map[string]interface{}, int) {
	t.Helper()

	progress := 0
	for {
		var msg map[string]interface{}
		require.NoError(t, ws.ReadJSON(&msg))
		switch msg["action"] {
		case "progress":
			progress++
		case "result", "error":
			return msg, progress
		default:
			t.Fatalf("unexpected event: %v", msg)
		}
	}
}

func TestHandleBatchWebSocket_SessionCreated(t *testing.T) {
	st := newTestStore(t)
	ws := dialBatchSocket(t, st)

	var hello map[string]interface{}
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "session_created", hello["action"])
	assert.NotEmpty(t, hello["session_id"])
}

func TestHandleBatchWebSocket_BatchRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ws := dialBatchSocket(t, st)

	var hello map[string]interface{}
	require.NoError(t, ws.ReadJSON(&hello))

	req := datatypes.BatchSharpenRequest{
		Datasets: []datatypes.BatchDataset{
			{Name: "alpha", PValues: []float64{0.001, 0.02, 0.9}},
			{Name: "beta", PValues: []float64{0.5, 0.6}},
		},
	}
	require.NoError(t, ws.WriteJSON(req))

	msg, progress := readUntilResult(t, ws)
	require.Equal(t, "result", msg["action"])
	assert.Equal(t, 2, progress)

	response, ok := msg["response"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), response["completed"])
	assert.Equal(t, float64(0), response["failed"])

	n, err := st.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandleBatchWebSocket_ValidationErrorKeepsSession(t *testing.T) {
	st := newTestStore(t)
	ws := dialBatchSocket(t, st)

	var hello map[string]interface{}
	require.NoError(t, ws.ReadJSON(&hello))

	// An empty batch is rejected without closing the session.
	require.NoError(t, ws.WriteJSON(map[string]interface{}{"datasets": []interface{}{}}))

	var errEvent map[string]interface{}
	require.NoError(t, ws.ReadJSON(&errEvent))
	assert.Equal(t, "error", errEvent["action"])
	assert.NotEmpty(t, errEvent["error"])

	persist := false
	req := datatypes.BatchSharpenRequest{
		Datasets: []datatypes.BatchDataset{
			{Name: "alpha", PValues: []float64{0.01, 0.2}},
		},
		Persist: &persist,
	}
	require.NoError(t, ws.WriteJSON(req))

	msg, _ := readUntilResult(t, ws)
	assert.Equal(t, "result", msg["action"])
}
