// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
	"github.com/kristoman-rikardo/standardgpt/observability"
	"github.com/kristoman-rikardo/standardgpt/progress"
)

// retryDirectiveMs tells EventSource clients how long to wait before
// reconnecting. Replay makes reconnects lossless within a session.
const retryDirectiveMs = 1000

// HandleStream attaches the SSE consumer for one stream session. The
// connection stays open until the producer publishes a terminal event, the
// subscriber caps are hit, or the client goes away.
func HandleStream(bus *progress.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamID := c.Param("streamSessionId")
		ch, err := bus.Subscribe(c.Request.Context(), streamID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ukjent strømmesesjon"})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Strømming støttes ikke"})
			return
		}

		metrics := observability.DefaultMetrics
		if metrics != nil {
			metrics.ActiveStreams.Inc()
			defer metrics.ActiveStreams.Dec()
		}

		if err := writer.WriteRetry(retryDirectiveMs); err != nil {
			return
		}

		for ev := range ch {
			if ev.Type == datatypes.EventKeepalive {
				if err := writer.WriteComment("keepalive"); err != nil {
					recordDisconnect(metrics, streamID, err)
					return
				}
				if metrics != nil {
					metrics.KeepAlivesTotal.Inc()
				}
				continue
			}
			if err := writer.WriteEvent(ev); err != nil {
				recordDisconnect(metrics, streamID, err)
				return
			}
		}
	}
}

func recordDisconnect(metrics *observability.PipelineMetrics, streamID string, err error) {
	if metrics != nil {
		metrics.ClientDisconnects.Inc()
	}
	slog.Debug("SSE client went away", "streamSessionId", streamID, "error", err)
}
