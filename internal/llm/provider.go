package llm

import (
	"context"
	"errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider-facing failures are converted to these sentinels at the client
// boundary; nothing above the retriever/composer sees raw transport errors.
var (
	// ErrProviderUnavailable marks a network/auth/rate-limit failure that
	// survived the bounded retry budget.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
	// ErrMalformedResponse marks a response that parsed but did not have the
	// mandated shape (missing choices, wrong embedding count).
	ErrMalformedResponse = errors.New("llm: malformed provider response")
)

// ChatProvider produces a single completion for a prompt exchange.
type ChatProvider interface {
	Complete(ctx context.Context, messages []Message, temperature float32) (string, error)
}

// Embedder maps a batch of texts to fixed-dimension vectors, one per input,
// preserving input order. Implementations sub-batch internally when the batch
// exceeds the provider limit.
type Embedder interface {
	Embeddings(ctx context.Context, inputs []string) ([][]float32, error)
}
