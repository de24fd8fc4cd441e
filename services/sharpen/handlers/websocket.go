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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianStats/services/sharpen/batch"
	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

var batchUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 1MB buffers; a full 100k-hypothesis batch response is a few MB and
	// streams through fine, the buffers just stop resizing below this.
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

// wsSession serializes writes to one WebSocket connection. Progress
// callbacks arrive from worker goroutines, and gorilla/websocket allows
// only one concurrent writer.
type wsSession struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (s *wsSession) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ws.WriteJSON(v)
	if err != nil {
		slog.Warn("WebSocket write failed", "error", err)
	}
	return err
}

// wsProgress is one dataset-completion event on the batch socket.
type wsProgress struct {
	Action    string `json:"action"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Dataset   string `json:"dataset"`
}

// HandleBatchWebSocket handles GET /v1/sharpen/ws.
//
// # Description
//
// Upgrades to a WebSocket and serves batch sharpening with live
// progress. The server first sends {"action": "session_created",
// "session_id": ...}; each subsequent client message is a
// datatypes.BatchSharpenRequest answered by a stream of "progress"
// events and one final {"action": "result", "response": ...}.
// Validation failures produce an "error" event and keep the session
// open.
func HandleBatchWebSocket(st store.Store, rec *history.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := batchUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		if m := observability.DefaultMetrics; m != nil {
			m.WebSocketOpened()
			defer m.WebSocketClosed()
		}

		sessionID := uuid.NewString()
		session := &wsSession{ws: ws}
		logger := slog.With("session_id", sessionID, "handler", "HandleBatchWebSocket")
		logger.Info("Batch websocket connected")

		if err := session.send(gin.H{"action": "session_created", "session_id": sessionID}); err != nil {
			return
		}

		for {
			var req datatypes.BatchSharpenRequest
			if err := ws.ReadJSON(&req); err != nil {
				logger.Info("Batch websocket disconnected", "error", err.Error())
				return
			}

			ctx := c.Request.Context()

			req.EnsureDefaults()
			if err := req.Validate(); err != nil {
				logger.Warn("Request validation failed", "error", err)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointBatchWS, observability.ErrorCodeValidation)
					m.RecordRequest(observability.EndpointBatchWS, false)
				}
				if session.send(gin.H{"action": "error", "request_id": req.RequestID, "error": err.Error()}) != nil {
					return
				}
				continue
			}

			logger.Info("Batch request received",
				"request_id", req.RequestID,
				"datasets", len(req.Datasets))

			datasets := make([]batch.Dataset, len(req.Datasets))
			for i, ds := range req.Datasets {
				datasets[i] = batch.Dataset{Name: ds.Name, PValues: ds.PValues}
			}

			start := time.Now()
			runner := batch.NewRunner(&batch.Options{
				Workers: req.Workers,
				Step:    req.Step,
				OnProgress: func(completed, total int, name string) {
					_ = session.send(wsProgress{
						Action:    "progress",
						Completed: completed,
						Total:     total,
						Dataset:   name,
					})
				},
			})

			outcomes, err := runner.Run(ctx, datasets)
			if err != nil {
				logger.Error("Batch run failed", "error", err)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointBatchWS, observability.ErrorCodeInternal)
					m.RecordRequest(observability.EndpointBatchWS, false)
				}
				if session.send(gin.H{"action": "error", "request_id": req.RequestID, "error": err.Error()}) != nil {
					return
				}
				continue
			}

			outs := collectBatchOutcomes(ctx, st, rec, observability.EndpointBatchWS, req, datasets, outcomes, logger)

			resp := datatypes.NewBatchSharpenResponse(req.RequestID, outs)
			resp.ProcessingTimeMs = time.Since(start).Milliseconds()

			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(observability.EndpointBatchWS, true)
			}

			logger.Info("Batch complete",
				"request_id", req.RequestID,
				"completed", resp.Completed,
				"failed", resp.Failed)

			if session.send(gin.H{"action": "result", "response": resp}) != nil {
				return
			}
		}
	}
}
