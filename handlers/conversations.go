// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kristoman-rikardo/standardgpt/middleware"
	"github.com/kristoman-rikardo/standardgpt/store"
)

type createConversationRequest struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

// HandleConversationList returns the requesting user's conversations,
// most recent first. limit query parameter caps the page, default 50.
func HandleConversationList(conversations *store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		list, err := conversations.List(c.Request.Context(), middleware.GetUserID(c), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunne ikke hente samtaler"})
			return
		}
		if list == nil {
			list = []store.Conversation{}
		}
		c.JSON(http.StatusOK, gin.H{"conversations": list})
	}
}

// HandleConversationCreate persists a conversation from one exchange. The
// normal path creates conversations through the query endpoints; this one
// exists for clients importing history.
func HandleConversationCreate(conversations *store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "question og answer kreves"})
			return
		}
		id, err := conversations.Create(c.Request.Context(), middleware.GetUserID(c), req.Question, req.Answer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunne ikke opprette samtale"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
	}
}

// HandleConversationGet returns one conversation with its messages.
func HandleConversationGet(conversations *store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		id := c.Param("id")

		conv, err := conversations.Get(c.Request.Context(), userID, id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Samtalen finnes ikke"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunne ikke hente samtalen"})
			return
		}
		messages, err := conversations.Messages(c.Request.Context(), userID, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunne ikke hente meldinger"})
			return
		}
		if messages == nil {
			messages = []store.Message{}
		}
		c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
	}
}

// HandleConversationDelete removes a conversation owned by the user.
func HandleConversationDelete(conversations *store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := conversations.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Samtalen finnes ikke"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunne ikke slette samtalen"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
