package api

import "github.com/loomstep/engine/internal/kernel"

// CreateSessionResponse is returned by POST /api/v1/sessions, per spec.md §6.
type CreateSessionResponse struct {
	SessionID    string `json:"session_id"`
	StoryID      string `json:"story_id"`
	StoryVersion int    `json:"story_version"`
	StoryNodeID  string `json:"story_node_id"`
	StateJSON    []byte `json:"state_json"`
	CurrentNode  string `json:"current_node"`
	Status       string `json:"status"`
}

// SessionStateResponse is returned by GET /api/v1/sessions/{id}.
type SessionStateResponse struct {
	SessionID    string      `json:"session_id"`
	StoryID      string      `json:"story_id"`
	StoryVersion int         `json:"story_version"`
	Status       string      `json:"status"`
	StoryNodeID  string      `json:"story_node_id"`
	State        kernel.State `json:"state"`
}

// ErrorDetail is the inner object of the error envelope spec.md §6 defines.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope is the full error response body: {"detail": {code, message}}.
type ErrorEnvelope struct {
	Detail ErrorDetail `json:"detail"`
}
