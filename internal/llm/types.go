// Package llm is the language-model and embedding boundary. The rest of the
// engine depends on the Model and Embedder interfaces only.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Request struct {
	Messages []Message
	Tools    []Tool

	// JSON asks the model for a single JSON object response.
	JSON bool
}

type Response struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// Model completes a conversation, optionally with tool calls.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }
