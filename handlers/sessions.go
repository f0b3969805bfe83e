// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kristoman-rikardo/standardgpt/memory"
	"github.com/kristoman-rikardo/standardgpt/progress"
)

type sessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type saveMemoryRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Question  string `json:"question" binding:"required"`
	Answer    string `json:"answer" binding:"required"`
}

type rebuildRequest struct {
	SessionID string            `json:"session_id" binding:"required"`
	Exchanges []memory.Exchange `json:"exchanges"`
}

// HandleSessionClear drops a session's conversation memory.
func HandleSessionClear(memories *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id mangler"})
			return
		}
		memories.Clear(req.SessionID)
		c.JSON(http.StatusOK, gin.H{"success": true, "session_id": req.SessionID})
	}
}

// HandleSessionSaveMemory appends one exchange to a session's memory. Used
// by clients restoring state after loading a persisted conversation.
func HandleSessionSaveMemory(memories *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, question og answer kreves"})
			return
		}
		memories.Append(req.SessionID, req.Question, req.Answer)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// HandleSessionRebuild replaces a session's memory wholesale from a list
// of exchanges, oldest first. The usual window cap applies.
func HandleSessionRebuild(memories *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rebuildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id mangler"})
			return
		}
		memories.Rebuild(req.SessionID, req.Exchanges)
		count, _ := memories.Stats(req.SessionID)
		c.JSON(http.StatusOK, gin.H{"success": true, "exchanges": count})
	}
}

// HandleSessionStats reports memory depth for one session plus the number
// of live stream sessions.
func HandleSessionStats(memories *memory.Store, bus *progress.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		count, lastTouched := memories.Stats(sessionID)
		resp := gin.H{
			"session_id":      sessionID,
			"exchanges":       count,
			"stream_sessions": bus.SessionCount(),
		}
		if !lastTouched.IsZero() {
			resp["last_activity"] = lastTouched
		}
		c.JSON(http.StatusOK, resp)
	}
}
