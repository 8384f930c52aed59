package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/internal/transport"
	"github.com/corestack/agentcore/pkg/models"
)

// scriptedTransport returns fixed text for every generation, ignoring the
// prompt; it never issues tool_use blocks so a nested loop always completes
// in its first turn.
type scriptedTransport struct {
	text string
}

func (s *scriptedTransport) Generate(ctx context.Context, prompt string, opts transport.Options) (transport.Result, error) {
	return transport.Result{Content: s.text}, nil
}

func (s *scriptedTransport) GenerateStream(ctx context.Context, prompt string, opts transport.Options) (<-chan transport.StreamEvent, error) {
	events := make(chan transport.StreamEvent, 2)
	events <- transport.StreamEvent{Kind: transport.EventDelta, Delta: s.text}
	events <- transport.StreamEvent{Kind: transport.EventComplete}
	close(events)
	return events, nil
}

func call(name string, args map[string]any) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	for k, v := range args {
		b, _ := json.Marshal(v)
		out[k] = b
	}
	return out
}

func newChildRegistry() *registry.Registry {
	return registry.New(registry.Config{})
}

func TestSpawnRunsNestedLoopToCompletion(t *testing.T) {
	tr := &scriptedTransport{text: "subagent done"}
	r := registry.New(registry.Config{})
	Register(r, Config{Transport: tr, NewRegistry: newChildRegistry, MaxDepth: DefaultMaxDepth})

	res := r.Execute(context.Background(), models.ToolCallRequest{
		ID: "1", Name: "subagent_spawn", Arguments: call("subagent_spawn", map[string]any{"task": "do a thing"}),
	})
	if res.IsError {
		t.Fatalf("subagent_spawn = %+v", res)
	}
	if res.Output != "subagent done" {
		t.Fatalf("Output = %q", res.Output)
	}
}

func TestDelegateIsSingleShot(t *testing.T) {
	tr := &scriptedTransport{text: "delegated answer"}
	r := registry.New(registry.Config{})
	Register(r, Config{Transport: tr, NewRegistry: newChildRegistry})

	res := r.Execute(context.Background(), models.ToolCallRequest{
		ID: "1", Name: "subagent_delegate", Arguments: call("subagent_delegate", map[string]any{"task": "summarize"}),
	})
	if res.IsError {
		t.Fatalf("subagent_delegate = %+v", res)
	}
	if res.Output != "delegated answer" {
		t.Fatalf("Output = %q", res.Output)
	}
}

func TestRegisterOmitsSubagentToolsAtMaxDepth(t *testing.T) {
	r := registry.New(registry.Config{})
	Register(r, Config{NewRegistry: newChildRegistry, Depth: DefaultMaxDepth, MaxDepth: DefaultMaxDepth})

	if _, ok := r.Get("subagent_spawn"); ok {
		t.Fatal("subagent_spawn should not be registered at max depth")
	}
	if _, ok := r.Get("subagent_delegate"); ok {
		t.Fatal("subagent_delegate should not be registered at max depth")
	}
}

func TestSpawnedChildCannotExceedMaxDepth(t *testing.T) {
	// A subagent spawned at depth MaxDepth-1 recurses to MaxDepth, where its
	// own child registry must not carry subagent tools.
	tr := &scriptedTransport{text: "leaf response"}
	r := registry.New(registry.Config{})
	Register(r, Config{Transport: tr, NewRegistry: newChildRegistry, Depth: DefaultMaxDepth - 1, MaxDepth: DefaultMaxDepth})

	if _, ok := r.Get("subagent_spawn"); !ok {
		t.Fatal("subagent_spawn should be registered one below max depth")
	}

	res := r.Execute(context.Background(), models.ToolCallRequest{
		ID: "1", Name: "subagent_spawn", Arguments: call("subagent_spawn", map[string]any{"task": "go deeper"}),
	})
	if res.IsError {
		t.Fatalf("subagent_spawn = %+v", res)
	}
	if res.Output != "leaf response" {
		t.Fatalf("Output = %q", res.Output)
	}
}
