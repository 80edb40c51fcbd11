// Package provider abstracts the remote generative-language services that
// power mentor conversations. A Provider creates stateful chat sessions; a
// ChatSession accumulates turn history on the provider side.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChatSession is one provider-side conversation. Implementations hold the
// accumulated turn history the model conditions on; callers must not share
// a session across conversation keys.
type ChatSession interface {
	// SendMessage sends one user turn and returns the model reply.
	SendMessage(ctx context.Context, message string) (string, error)
}

// Provider creates chat sessions against a remote model API.
type Provider interface {
	// NewSession starts a conversation with the given system instruction.
	NewSession(ctx context.Context, systemPrompt string) (ChatSession, error)

	// Name identifies the backend ("gemini", "openai", "anthropic").
	Name() string
}

// Sentinel errors for the failure classes the API surfaces distinctly.
var (
	// ErrAuth means the provider rejected our credential.
	ErrAuth = errors.New("provider rejected API credentials")

	// ErrRateLimit means the provider quota is exhausted.
	ErrRateLimit = errors.New("provider quota exceeded")
)

// InitError wraps a failure to construct a provider session, so callers can
// distinguish "could not start the conversation" from "send failed".
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s session init failed: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Classify maps a raw provider error onto the typed taxonomy. SDK errors
// that already wrap ErrAuth or ErrRateLimit pass through; for everything
// else it falls back to a case-insensitive substring match on the error
// text. The substring heuristic is fragile by nature and exists only
// because some SDK paths surface unstructured errors.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrRateLimit) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	case strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	default:
		return err
	}
}
