package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/venturemind/mentord/internal/prompt"
	"github.com/venturemind/mentord/internal/provider"
	"github.com/venturemind/mentord/internal/session"
)

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Details:   details,
		Success:   false,
		Timestamp: timestamp(),
	})
}

// handleChat runs the chat pipeline: validate, resolve session, send with
// a timeout bound, classify failures, assemble the reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.rateLimiter != nil && !s.rateLimiter.Allow(clientIP(r)) {
		retryAfter := s.rateLimiter.RetryAfter(clientIP(r))
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		writeError(w, http.StatusTooManyRequests, "Too many requests", "")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body", err.Error())
		return
	}

	userType := prompt.Normalize(req.UserType)

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.trackChat(userType, http.StatusUnprocessableEntity, start)
		writeError(w, http.StatusUnprocessableEntity, "Message cannot be empty", "")
		return
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		s.trackChat(userType, http.StatusUnprocessableEntity, start)
		writeError(w, http.StatusUnprocessableEntity, "Message too long",
			fmt.Sprintf("message must be at most %d characters", maxMessageLength))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	key := session.KeyFor(userType, sessionID)

	conv, created, err := s.registry.GetOrCreate(r.Context(), key, prompt.Instruction(userType))
	if err != nil {
		s.metrics.ProviderErrorsTotal.WithLabelValues("init").Inc()
		s.trackChat(userType, http.StatusInternalServerError, start)
		s.logger.Error().Err(err).Str("sessionKey", string(key)).Msg("Failed to create chat session")
		writeError(w, http.StatusInternalServerError, "Failed to initialize AI model", "")
		return
	}
	if created {
		s.metrics.SessionsCreatedTotal.Inc()
		s.metrics.SessionsActive.Set(float64(s.registry.Count()))
	}

	reply, err := s.sendWithTimeout(conv, message)
	if err != nil {
		status, kind, body := classifySendError(err)
		s.metrics.ProviderErrorsTotal.WithLabelValues(kind).Inc()
		s.trackChat(userType, status, start)
		s.logger.Error().Err(err).Str("sessionKey", string(key)).Msg("Error sending message")
		writeError(w, status, body, "")
		return
	}

	s.trackChat(userType, http.StatusOK, start)
	s.logger.Info().
		Str("sessionKey", string(key)).
		Str("userType", string(userType)).
		Msg("Chat interaction")

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:     strings.TrimSpace(reply),
		UserType:  string(userType),
		SessionID: sessionID,
		Success:   true,
		Timestamp: timestamp(),
	})
}

// errTimedOut marks the timeout branch of the send race.
var errTimedOut = errors.New("provider send timed out")

// sendWithTimeout races the provider send against the configured bound.
// The provider call runs on its own goroutine; if the timer wins, the call
// keeps running but its eventual result is discarded. The session stays
// usable for the next request.
func (s *Server) sendWithTimeout(conv *session.Conversation, message string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.options.RequestTimeout)
	defer cancel()

	type sendResult struct {
		reply string
		err   error
	}
	resultCh := make(chan sendResult, 1)

	go func() {
		reply, err := conv.Send(ctx, message)
		resultCh <- sendResult{reply, err}
	}()

	select {
	case res := <-resultCh:
		return res.reply, res.err
	case <-ctx.Done():
		return "", errTimedOut
	}
}

// classifySendError maps a send failure to status code, metric kind, and
// client-facing message.
func classifySendError(err error) (int, string, string) {
	switch {
	case errors.Is(err, errTimedOut):
		return http.StatusRequestTimeout, "timeout", "Request timed out. Please try again."
	case errors.Is(err, provider.ErrAuth):
		return http.StatusUnauthorized, "auth", "Invalid API configuration"
	case errors.Is(err, provider.ErrRateLimit):
		return http.StatusTooManyRequests, "rate_limit", "API quota exceeded. Please try again later."
	default:
		return http.StatusInternalServerError, "other", "Failed to process chat message"
	}
}

func (s *Server) trackChat(userType prompt.UserType, status int, start time.Time) {
	s.metrics.ChatRequestsTotal.WithLabelValues(string(userType), fmt.Sprintf("%d", status)).Inc()
	s.metrics.ChatRequestDuration.WithLabelValues(string(userType)).Observe(time.Since(start).Seconds())
}

// handleHealth reports static liveness; it does not probe the provider.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Message:   "Chatbot API is running",
		Timestamp: timestamp(),
	})
}

// handleDeleteSession removes one registry entry. Deleting an absent
// session is not an error.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	userType := r.URL.Query().Get("userType")
	if userType == "" {
		userType = string(prompt.Aspiring)
	}

	key := session.KeyFor(prompt.Normalize(userType), sessionID)
	if s.registry.Delete(key) {
		s.metrics.SessionsDeletedTotal.Inc()
		s.metrics.SessionsActive.Set(float64(s.registry.Count()))
	}

	writeJSON(w, http.StatusOK, DeleteResponse{
		Message:   "Chat session cleared",
		SessionID: sessionID,
	})
}

// handleSessions exposes a point-in-time snapshot of the registry.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	keys := s.registry.Keys()
	sessions := make([]string, len(keys))
	for i, k := range keys {
		sessions[i] = string(k)
	}

	writeJSON(w, http.StatusOK, SessionsResponse{
		ActiveSessions: len(sessions),
		Sessions:       sessions,
		Timestamp:      timestamp(),
	})
}
