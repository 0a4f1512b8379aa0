// Package memory declares the user-context store consumed by the
// orchestrator. Implementations live under features/memory; the store is
// opaque to the runtime and its failures are never turn-fatal.
package memory

import (
	"context"
	"time"
)

type (
	// Store fetches prior user context before a turn and persists new facts
	// after one.
	Store interface {
		// FetchContext returns a serialized view of what is known about the
		// user, ready for prompt inclusion. Empty string means no context.
		FetchContext(ctx context.Context, userID string) (string, error)

		// Persist records facts extracted from a completed turn.
		Persist(ctx context.Context, userID string, facts []Fact) error
	}

	// Fact is one remembered statement from a conversation.
	Fact struct {
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// NoopStore satisfies Store without remembering anything.
type NoopStore struct{}

// FetchContext returns no context.
func (NoopStore) FetchContext(context.Context, string) (string, error) { return "", nil }

// Persist discards the facts.
func (NoopStore) Persist(context.Context, string, []Fact) error { return nil }
