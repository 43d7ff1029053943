// Package llm defines the text generation capability used by the turn
// orchestrator and a Genkit-backed implementation of it.
package llm

import (
	"context"
	"iter"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Message is one entry of the prompt sent to a model.
type Message struct {
	Role    domain.Role
	Content string
}

// Provider generates assistant text from an ordered prompt.
type Provider interface {
	// Complete returns the full reply in one shot.
	Complete(ctx context.Context, prompt []Message) (string, error)

	// Stream yields text deltas in generation order. A non-nil error ends
	// the sequence; deltas yielded before it remain valid.
	Stream(ctx context.Context, prompt []Message) iter.Seq2[string, error]
}
