// Package session tracks live provider conversations keyed by user type
// and session id. The registry is in-memory only: entries live until
// explicit deletion or process exit. There is no eviction, capacity bound,
// or persistence.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/venturemind/mentord/internal/prompt"
	"github.com/venturemind/mentord/internal/provider"
)

// Key uniquely identifies one conversation thread.
type Key string

// KeyFor builds the composite key for a user type and session id.
func KeyFor(userType prompt.UserType, sessionID string) Key {
	return Key(string(userType) + "_" + sessionID)
}

// Conversation is a registered provider session. Sends are serialized per
// conversation so overlapping requests on one key produce a well-defined
// transcript order.
type Conversation struct {
	key     Key
	session provider.ChatSession
	failed  bool

	initMu sync.Mutex
	sendMu sync.Mutex
}

// Key returns the conversation's registry key.
func (c *Conversation) Key() Key { return c.key }

// Send forwards one user turn to the provider session. Only one send per
// conversation runs at a time.
func (c *Conversation) Send(ctx context.Context, message string) (string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.session.SendMessage(ctx, message)
}

// Registry owns the process-wide mapping from Key to Conversation. It is
// safe for concurrent use; session creation is a single atomic
// insert-if-absent per key, so two racing first requests cannot leak a
// second provider session.
type Registry struct {
	provider provider.Provider
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[Key]*Conversation
}

// NewRegistry creates an empty registry backed by the given provider.
func NewRegistry(p provider.Provider, logger zerolog.Logger) *Registry {
	return &Registry{
		provider: p,
		logger:   logger,
		entries:  make(map[Key]*Conversation),
	}
}

// GetOrCreate returns the conversation for key, creating it with the given
// system prompt on first use. The returned bool reports whether a new
// provider session was created. Creation failure leaves no entry behind,
// so a later request can retry.
func (r *Registry) GetOrCreate(ctx context.Context, key Key, systemPrompt string) (*Conversation, bool, error) {
	r.mu.Lock()
	conv, exists := r.entries[key]
	if !exists {
		conv = &Conversation{key: key}
		r.entries[key] = conv
	}
	r.mu.Unlock()

	// Initialization happens outside the registry lock so one slow
	// provider call does not stall unrelated keys. The per-conversation
	// init mutex keeps creation exactly-once.
	conv.initMu.Lock()

	if conv.session != nil {
		conv.initMu.Unlock()
		return conv, false, nil
	}
	if conv.failed {
		// The goroutine that owned this placeholder failed and removed
		// it; start over against the current map state.
		conv.initMu.Unlock()
		return r.GetOrCreate(ctx, key, systemPrompt)
	}
	defer conv.initMu.Unlock()

	sess, err := r.provider.NewSession(ctx, systemPrompt)
	if err != nil {
		conv.failed = true

		r.mu.Lock()
		if r.entries[key] == conv {
			delete(r.entries, key)
		}
		r.mu.Unlock()

		if _, ok := err.(*provider.InitError); !ok {
			err = &provider.InitError{Backend: r.provider.Name(), Err: err}
		}
		return nil, false, err
	}

	conv.session = sess
	r.logger.Info().Str("sessionKey", string(key)).Msg("New chat session created")
	return conv, true, nil
}

// Delete removes the entry for key and reports whether anything was
// removed. Deleting an absent key is not an error.
func (r *Registry) Delete(key Key) bool {
	r.mu.Lock()
	_, exists := r.entries[key]
	if exists {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if exists {
		r.logger.Info().Str("sessionKey", string(key)).Msg("Chat session cleared")
	}
	return exists
}

// Keys returns a point-in-time snapshot of registered keys, sorted.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Count returns the number of registered conversations.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes all entries. Used at shutdown; provider-side session state
// is not drained or closed.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.entries)
	r.entries = make(map[Key]*Conversation)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Info().Int("count", n).Msg("Registry cleared")
	}
}
