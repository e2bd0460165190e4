// Package llm implements the last cascade stage: a prompt-templated LLM
// classifier that answers from a closed set of valid classifications.
package llm

import "context"

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Client defines the interface for LLM providers. Implementations are
// stateless; the classifier owns the conversation.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}
