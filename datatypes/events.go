// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// EventType tags a ProgressEvent on the wire.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventProgress    EventType = "progress"
	EventToken       EventType = "token"
	EventFinalAnswer EventType = "final_answer"
	EventConvID      EventType = "conversation_id"
	EventConvTitle   EventType = "conversation_title_update"
	EventError       EventType = "error"
	EventKeepalive   EventType = "keepalive"
)

// Pipeline stages reported through Progress events. Percentages are fixed
// per stage and strictly increasing within one query.
const (
	StageStarted    = "started"
	StageValidation = "validation"
	StageAnalysis   = "analysis"
	StageExtraction = "extraction"
	StageRouting    = "routing"
	StageSearch     = "search"
	StageAnswer     = "answer_generation"
	StageComplete   = "complete"
)

// ProgressEvent is the single wire shape for every event delivered over the
// SSE stream. Fields are omitted when they do not apply to the Type.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Percent   int       `json:"percent,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	Text      string    `json:"text,omitempty"`
	Final     bool      `json:"final,omitempty"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

func ConnectedEvent(sessionID string) ProgressEvent {
	return ProgressEvent{Type: EventConnected, SessionID: sessionID, Timestamp: time.Now()}
}

func StageEvent(stage, message string, percent int, emoji string) ProgressEvent {
	return ProgressEvent{
		Type:      EventProgress,
		Stage:     stage,
		Message:   message,
		Percent:   percent,
		Emoji:     emoji,
		Timestamp: time.Now(),
	}
}

func TokenEvent(text string, final bool) ProgressEvent {
	return ProgressEvent{Type: EventToken, Text: text, Final: final}
}

func FinalAnswerEvent(text string) ProgressEvent {
	return ProgressEvent{Type: EventFinalAnswer, Text: text, Timestamp: time.Now()}
}

func ConversationIDEvent(id string) ProgressEvent {
	return ProgressEvent{Type: EventConvID, SessionID: id, Timestamp: time.Now()}
}

func ConversationTitleEvent(id, title string) ProgressEvent {
	return ProgressEvent{Type: EventConvTitle, SessionID: id, Title: title, Timestamp: time.Now()}
}

func ErrorEvent(message string) ProgressEvent {
	return ProgressEvent{Type: EventError, Message: message, Timestamp: time.Now()}
}

// Terminal reports whether the event closes its session's stream.
func (e ProgressEvent) Terminal() bool {
	return e.Type == EventFinalAnswer || e.Type == EventError
}
