// Package subagent registers subagent_spawn and subagent_delegate: tools
// that let a running loop recurse into a nested loop or a single-shot
// generation. Depth is threaded explicitly through Config so a cycle is
// prevented by construction: at depth >= MaxDepth, Register omits the
// subagent tools entirely rather than relying on a runtime check inside
// the handler.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corestack/agentcore/internal/conversation"
	"github.com/corestack/agentcore/internal/loop"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/internal/transport"
	"github.com/corestack/agentcore/pkg/models"
)

// DefaultMaxDepth bounds subagent nesting when Config.MaxDepth is zero.
const DefaultMaxDepth = 2

// Config wires the subagent tools to their collaborators.
type Config struct {
	Transport transport.Transport

	// NewRegistry builds a fresh registry holding the tool set a spawned
	// subagent should see, not including subagent tools; Register adds
	// those itself, recursing one depth deeper.
	NewRegistry func() *registry.Registry

	Depth    int
	MaxDepth int
	MaxTurns int
}

// Register installs subagent_spawn and subagent_delegate on r, unless
// cfg.Depth has already reached cfg.MaxDepth.
func Register(r *registry.Registry, cfg Config) {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Depth >= cfg.MaxDepth {
		return
	}

	r.Register(models.ToolDefinition{
		Name:        "subagent_spawn",
		Description: "Spawn a nested agentic loop to work a task to completion and return its final answer.",
		Category:    "subagent",
		Parameters: map[string]models.ToolParameter{
			"task":          {Type: "string", Required: true},
			"system_prompt": {Type: "string", Description: "optional system prompt for the subagent"},
		},
	}, cfg.spawnHandler())

	r.Register(models.ToolDefinition{
		Name:        "subagent_delegate",
		Description: "Delegate a task to a single-shot generation with no tool access.",
		Category:    "subagent",
		Parameters: map[string]models.ToolParameter{
			"task":          {Type: "string", Required: true},
			"system_prompt": {Type: "string", Description: "optional system prompt for the generation"},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true},
	}, cfg.delegateHandler())
}

func (cfg Config) spawnHandler() registry.Handler {
	return func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		task, err := stringArg(args, "task")
		if err != nil {
			return "", err
		}
		systemPrompt, _ := optionalStringArg(args, "system_prompt")

		child := cfg.NewRegistry()
		Register(child, Config{
			Transport:   cfg.Transport,
			NewRegistry: cfg.NewRegistry,
			Depth:       cfg.Depth + 1,
			MaxDepth:    cfg.MaxDepth,
			MaxTurns:    cfg.MaxTurns,
		})

		l := loop.New(loop.Config{
			Transport:    cfg.Transport,
			Registry:     child,
			Conversation: conversation.New(conversation.Config{}),
			MaxTurns:     cfg.MaxTurns,
			SystemPrompt: systemPrompt,
		})

		result, err := l.Run(ctx, task, loop.Callbacks{}, nil)
		if err != nil {
			return "", err
		}
		if result.Aborted {
			return "", fmt.Errorf("subagent run was cancelled")
		}
		if result.HitTurnLimit {
			return "", fmt.Errorf("subagent hit its turn limit without a final answer (last response: %s)", result.FinalText)
		}
		return result.FinalText, nil
	}
}

func (cfg Config) delegateHandler() registry.Handler {
	return func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		task, err := stringArg(args, "task")
		if err != nil {
			return "", err
		}
		systemPrompt, _ := optionalStringArg(args, "system_prompt")

		result, err := cfg.Transport.Generate(ctx, task, transport.Options{SystemPrompt: systemPrompt})
		if err != nil {
			return "", err
		}
		return result.Content, nil
	}
}

func stringArg(args map[string]json.RawMessage, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	return s, nil
}

func optionalStringArg(args map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := args[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
