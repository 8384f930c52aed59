// Package transport defines the generation transport contract: the
// abstract streaming-model boundary the agentic loop consumes. Concrete
// adapters (see the anthropic subpackage) bridge this to a real model API.
package transport

import (
	"context"

	"github.com/corestack/agentcore/pkg/models"
)

// Image is an inline image attachment passed alongside a prompt.
type Image struct {
	MimeType string
	Base64   string
}

// Options is the fixed shape of per-call generation options.
type Options struct {
	ServerName   string
	AgentID      string
	SystemPrompt string
	Images       []Image

	// OnToolCall and OnToolCallUpdate, if set, are invoked synchronously as
	// the corresponding stream events are produced, in addition to those
	// events being sent on the stream channel.
	OnToolCall       func(models.ToolCallRequest)
	OnToolCallUpdate func(models.ToolCallRequest)
}

// Usage reports token accounting for a completed generation, when the
// transport can supply it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is the outcome of a synchronous Generate call.
type Result struct {
	Content string
	Usage   *Usage
}

// EventKind discriminates a StreamEvent's payload.
type EventKind string

const (
	EventDelta          EventKind = "delta"
	EventToolCall       EventKind = "tool_call"
	EventToolCallUpdate EventKind = "tool_call_update"
	EventComplete       EventKind = "complete"
)

// StreamEvent is one item of a GenerateStream sequence. Exactly one of the
// payload fields is meaningful, selected by Kind; Complete is always the
// final event sent on the channel.
type StreamEvent struct {
	Kind EventKind

	Delta            string
	ToolCall         models.ToolCallRequest
	ToolCallUpdate   models.ToolCallRequest
	Usage            *Usage

	// Err is set when the stream terminates abnormally; Kind is still
	// EventComplete in that case so callers need only check one field.
	Err error
}

// Transport is the abstract generation boundary the agentic loop consumes.
// Implementations must treat ctx cancellation as a request to stop
// producing further stream events promptly.
type Transport interface {
	// Generate performs a single-shot, non-streaming generation.
	Generate(ctx context.Context, prompt string, opts Options) (Result, error)

	// GenerateStream returns a channel of StreamEvents terminated by exactly
	// one EventComplete event (carrying Err on failure). The channel is
	// closed after the terminal event is sent.
	GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan StreamEvent, error)
}
