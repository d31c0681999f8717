package llm

import "context"

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode hints at how directed the completion should be. Extraction always
// runs in interactive mode regardless of any surrounding chat session.
type Mode string

const (
	ModeChat        Mode = "chat"
	ModeInteractive Mode = "interactive"
)

// Client is the uniform completion capability the engine depends on. Any
// provider (cloud API or local inference server) implementing this
// signature is pluggable.
type Client interface {
	GenerateCompletion(ctx context.Context, messages []Message, contextStr string, mode Mode) (string, error)
}
