package models

import "encoding/json"

// ToolParameter describes one named argument a tool accepts.
type ToolParameter struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolAnnotations carries optional hints about a tool's side effects for
// callers and UIs; neither the registry nor the permission resolver reads
// or enforces them.
type ToolAnnotations struct {
	ReadOnly    bool `json:"read_only,omitempty"`
	Destructive bool `json:"destructive,omitempty"`
	Idempotent  bool `json:"idempotent,omitempty"`
}

// ToolDefinition is the catalog entry for a registered tool: its name,
// description, and parameter schema.
type ToolDefinition struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  map[string]ToolParameter `json:"parameters,omitempty"`
	Category    string                   `json:"category,omitempty"`
	Annotations *ToolAnnotations         `json:"annotations,omitempty"`
}

// ToolCallRequest is a single tool invocation parsed out of a model
// response, or constructed directly by a caller (e.g. a subagent).
type ToolCallRequest struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the outcome of executing a ToolCallRequest.
type ToolCallResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Output     string `json:"output"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// LoopKind distinguishes a final text turn from one that issued tool calls.
type LoopKind string

const (
	LoopKindText    LoopKind = "text"
	LoopKindToolUse LoopKind = "tool_use"
)

// LoopTurn records what happened during one iteration of the agentic loop.
type LoopTurn struct {
	TurnIndex   int               `json:"turn_index"`
	Kind        LoopKind          `json:"kind"`
	Text        string            `json:"text,omitempty"`
	ToolCalls   []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResults []ToolCallResult  `json:"tool_results,omitempty"`
}
