// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the query pipeline, the
// SSE stream, session administration, and conversation persistence.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
	"github.com/kristoman-rikardo/standardgpt/middleware"
	"github.com/kristoman-rikardo/standardgpt/orchestrator"
	"github.com/kristoman-rikardo/standardgpt/progress"
	"github.com/kristoman-rikardo/standardgpt/store"
	"github.com/kristoman-rikardo/standardgpt/validation"
)

// HandleQuery runs the pipeline synchronously and returns the full answer.
func HandleQuery(engine *orchestrator.Engine, conversations *store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ugyldig forespørsel: question mangler"})
			return
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		result, err := engine.ProcessQuery(c.Request.Context(), req.Question, sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if validation.IsInvalidQuestion(err) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error(), "success": false})
			return
		}

		conversationID := persistExchange(c.Request.Context(), conversations,
			middleware.GetUserID(c), req.ConversationID, req.Question, result.Answer)

		c.JSON(http.StatusOK, datatypes.QueryResponse{
			Answer:         result.Answer,
			Route:          result.Route,
			Standards:      result.Standards,
			MemoryTerms:    result.MemoryTerms,
			ProcessingTime: result.ProcessingTime.Seconds(),
			SessionID:      sessionID,
			ConversationID: conversationID,
			MemoryFallback: result.MemoryFallback,
			Success:        true,
		})
	}
}

// HandleQueryStream registers a stream session, spawns the pipeline
// producer, and immediately returns the stream coordinates. The client is
// expected to open the stream URL next; replay covers anything published
// before it does.
func HandleQueryStream(engine *orchestrator.Engine, bus *progress.Bus,
	conversations *store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ugyldig forespørsel: question mangler"})
			return
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		streamID := uuid.NewString()
		userID := middleware.GetUserID(c)

		bus.CreateSession(streamID)
		go produceStream(engine, bus, conversations, req, userID, sessionID, streamID)

		c.JSON(http.StatusOK, datatypes.StreamStartResponse{
			SessionID:       sessionID,
			StreamSessionID: streamID,
			StreamURL:       "/api/stream/" + streamID,
		})
	}
}

// produceStream runs detached from the initiating request; the engine
// applies its own deadline. Conversation events go out before the terminal
// final_answer so the client learns the id and title on the same stream.
func produceStream(engine *orchestrator.Engine, bus *progress.Bus,
	conversations *store.ConversationStore, req datatypes.QueryRequest,
	userID, sessionID, streamID string) {
	ctx := context.Background()

	result, err := engine.StreamQuery(ctx, req.Question, sessionID, streamID)
	if err != nil {
		// The engine already published the terminal error event.
		slog.Warn("streaming pipeline failed", "sessionId", sessionID, "error", err)
		return
	}

	if conversationID := persistExchange(ctx, conversations, userID,
		req.ConversationID, req.Question, result.Answer); conversationID != "" && req.ConversationID == "" {
		bus.Publish(streamID, datatypes.ConversationIDEvent(conversationID))
		if conv, err := conversations.Get(ctx, userID, conversationID); err == nil {
			bus.Publish(streamID, datatypes.ConversationTitleEvent(conversationID, conv.Title))
		}
	}

	bus.Publish(streamID, datatypes.FinalAnswerEvent(result.Answer))
}

// persistExchange writes the exchange to the conversation store and
// returns the conversation id, or "" when persistence was skipped or
// failed. Persistence failures never fail the query.
func persistExchange(ctx context.Context, conversations *store.ConversationStore,
	userID, conversationID, question, answer string) string {
	if conversations == nil || answer == "" {
		return ""
	}
	if conversationID != "" {
		if err := conversations.AppendMessage(ctx, userID, conversationID, question, answer); err != nil {
			slog.Warn("appending to conversation failed",
				"conversationId", conversationID, "error", err)
			return ""
		}
		return conversationID
	}
	id, err := conversations.Create(ctx, userID, question, answer)
	if err != nil {
		slog.Warn("creating conversation failed", "error", err)
		return ""
	}
	return id
}
