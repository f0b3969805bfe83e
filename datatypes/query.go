// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Route is the retrieval strategy selected for one question. The set is
// closed; anything else coming out of the analysis step is coerced to
// RouteWithout before it reaches a query builder.
type Route string

const (
	RouteIncluding Route = "including"
	RouteWithout   Route = "without"
	RoutePersonal  Route = "personal"
	RouteMemory    Route = "memory"
)

// ValidRoute reports whether s names one of the four retrieval routes.
func ValidRoute(s string) bool {
	switch Route(s) {
	case RouteIncluding, RouteWithout, RoutePersonal, RouteMemory:
		return true
	}
	return false
}

// QueryRequest is the body of POST /api/query and /api/query/stream.
// SessionID selects the conversation memory window; ConversationID appends
// the exchange to an existing persisted conversation instead of starting a
// new one.
type QueryRequest struct {
	Question       string `json:"question" binding:"required"`
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
}

// QueryResult is what the orchestrator hands back once a pipeline run
// finishes. Answer is always populated, possibly with a fallback message.
type QueryResult struct {
	Answer         string        `json:"answer"`
	Route          Route         `json:"route"`
	Standards      []string      `json:"standards"`
	MemoryTerms    []string      `json:"memory_terms"`
	MemoryFallback bool          `json:"memory_fallback"`
	ProcessingTime time.Duration `json:"-"`
}

// QueryResponse is the JSON envelope for the non-streaming endpoint.
type QueryResponse struct {
	Answer         string   `json:"answer"`
	Route          Route    `json:"route"`
	Standards      []string `json:"standards"`
	MemoryTerms    []string `json:"memory_terms"`
	ProcessingTime float64  `json:"processing_time"`
	SessionID      string   `json:"session_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	MemoryFallback bool     `json:"memory_fallback,omitempty"`
	Success        bool     `json:"success"`
}

// StreamStartResponse is returned by POST /api/query/stream. The caller is
// expected to open stream_url before the pipeline gets far.
type StreamStartResponse struct {
	SessionID       string `json:"session_id"`
	StreamSessionID string `json:"stream_session_id"`
	StreamURL       string `json:"stream_url"`
}
