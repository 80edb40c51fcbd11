package server

import (
	"time"
)

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message   string `json:"message"`
	UserType  string `json:"userType"`
	SessionID string `json:"sessionId"`
}

// ChatResponse is the success body of POST /api/chat
type ChatResponse struct {
	Reply     string `json:"reply"`
	UserType  string `json:"userType"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the body of every error status
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// SessionsResponse is the body of GET /api/sessions
type SessionsResponse struct {
	ActiveSessions int      `json:"activeSessions"`
	Sessions       []string `json:"sessions"`
	Timestamp      string   `json:"timestamp"`
}

// DeleteResponse is the body of DELETE /api/chat/{sessionId}
type DeleteResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// Options configures the HTTP server
type Options struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RequestTimeout     time.Duration // bound on one provider send
	RateLimitPerMinute int           // per-IP budget for /api/chat, 0 disables
}

// maxMessageLength is the upper bound on a chat message after trimming.
const maxMessageLength = 2000

// defaultSessionID is used when the client does not supply one.
const defaultSessionID = "default"
