// Package loop implements the agentic loop: a bounded, cancellable,
// tool-augmented dialogue driver that multiplexes a streaming transport, a
// tool registry, and a conversation buffer, with doom-loop detection and
// best-effort compaction.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/corestack/agentcore/internal/conversation"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/internal/transport"
	"github.com/corestack/agentcore/pkg/models"
)

// DefaultMaxTurns bounds a run when Config.MaxTurns is zero.
const DefaultMaxTurns = 10

// doomLoopThreshold is the number of consecutive identical tool-call sets
// that triggers on_doom_loop and a corrective nudge.
const doomLoopThreshold = 3

// Config wires a Loop to its collaborators. The loop holds non-owning
// references to Transport and Registry and never mutates the registry.
type Config struct {
	Transport    transport.Transport
	Registry     *registry.Registry
	Conversation *conversation.Conversation

	MaxTurns          int
	ServerName        string
	AgentID           string
	SystemPrompt      string
	AgentManagesTools bool
}

// Callbacks are all optional observability hooks. A hook that panics or
// whose presence is nil is simply skipped; hooks never interrupt the loop.
type Callbacks struct {
	OnStreamStart         func()
	OnStreamDelta         func(text string)
	OnToolCallStart       func(call models.ToolCallRequest)
	OnToolCallEnd         func(result models.ToolCallResult)
	OnTurnComplete        func(turn models.LoopTurn)
	OnError               func(err error)
	OnPermissionCheck     func(call models.ToolCallRequest) bool // false denies; nil callback always allows
	OnAgentToolCall       func(call models.ToolCallRequest)
	OnAgentToolCallUpdate func(call models.ToolCallRequest)
	OnDoomLoop            func()
	OnCompaction          func(summary string)
	OnTokenUsage          func(usage transport.Usage)
}

// Result is the outcome of one Run.
type Result struct {
	FinalText    string
	Turns        []models.LoopTurn
	TotalTurns   int
	HitTurnLimit bool
	Aborted      bool
}

// Loop runs turn-bounded conversations over a transport, tool registry, and
// conversation buffer. Exactly one Run executes per instance at a time; it
// is not safe to call Run concurrently on the same Loop.
type Loop struct {
	cfg Config
}

// New creates a Loop. MaxTurns defaults to DefaultMaxTurns when <= 0.
func New(cfg Config) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	return &Loop{cfg: cfg}
}

// Run appends input as a user message and drives turns until a final text
// response, a turn limit, or cancellation. ctx cancellation is the loop's
// one-way cancel token: it is checked before each turn, between stream
// items, and between tool executions.
func (l *Loop) Run(ctx context.Context, input string, cb Callbacks, images []transport.Image) (Result, error) {
	conv := l.cfg.Conversation
	conv.AddUser(input)

	systemPrompt := l.cfg.SystemPrompt
	if !l.cfg.AgentManagesTools {
		formatted := l.cfg.Registry.FormatForSystemPrompt()
		if formatted != "" {
			systemPrompt = formatted + "\n\n" + systemPrompt
		}
	}
	conv.SetSystemPrompt(systemPrompt)

	var turns []models.LoopTurn
	var lastAssistantText string
	var lastDoomKey string
	identicalCount := 0

	for turn := 1; turn <= l.cfg.MaxTurns; turn++ {
		if isCancelled(ctx) {
			return Result{Aborted: true, TotalTurns: turn - 1, Turns: turns}, nil
		}

		if conv.NeedsCompaction() && turn > 1 {
			l.tryCompact(ctx, cb)
		}

		fullResponse, streamErr := l.stream(ctx, conv.Serialize(), systemPrompt, images, cb)
		if isCancelled(ctx) {
			return Result{Aborted: true, TotalTurns: turn - 1, Turns: turns}, nil
		}
		if streamErr != nil {
			fullResponse = fmt.Sprintf("Error communicating with model: %v", streamErr)
			safeCall(func() { callOnError(cb, streamErr) })
		} else if strings.TrimSpace(fullResponse) == "" {
			safeCall(func() { callOnError(cb, errNoResponse) })
			fullResponse = "No response received from model."
		}

		conv.AddAssistant(fullResponse)
		lastAssistantText = fullResponse

		if l.cfg.AgentManagesTools {
			t := models.LoopTurn{TurnIndex: turn, Kind: models.LoopKindText, Text: fullResponse}
			turns = append(turns, t)
			safeCall(func() { callOnTurnComplete(cb, t) })
			return Result{FinalText: fullResponse, Turns: turns, TotalTurns: len(turns), HitTurnLimit: false}, nil
		}

		parsed := registry.ParseToolCalls(fullResponse)
		if len(parsed.ToolCalls) == 0 {
			t := models.LoopTurn{TurnIndex: turn, Kind: models.LoopKindText, Text: parsed.Text}
			turns = append(turns, t)
			safeCall(func() { callOnTurnComplete(cb, t) })
			return Result{FinalText: parsed.Text, Turns: turns, TotalTurns: len(turns), HitTurnLimit: false}, nil
		}

		key := doomLoopKey(parsed.ToolCalls)
		if key == lastDoomKey {
			identicalCount++
		} else {
			identicalCount = 1
		}
		lastDoomKey = key
		if identicalCount == doomLoopThreshold {
			safeCall(func() { callOnDoomLoop(cb) })
			conv.AddUser("You appear to be repeating the same tool call. Please change your approach.")
		}

		results := make([]models.ToolCallResult, 0, len(parsed.ToolCalls))
		for _, call := range parsed.ToolCalls {
			if isCancelled(ctx) {
				return Result{Aborted: true, TotalTurns: turn - 1, Turns: turns}, nil
			}

			safeCall(func() { callOnToolCallStart(cb, call) })

			allowed := true
			if cb.OnPermissionCheck != nil {
				safeCall(func() { allowed = cb.OnPermissionCheck(call) })
			}

			var result models.ToolCallResult
			if !allowed {
				result = models.ToolCallResult{ID: call.ID, Name: call.Name, Output: "permission denied", IsError: true}
			} else {
				result = l.cfg.Registry.Execute(ctx, call)
			}

			conv.AddToolResult(result.ID, result.Name, result.Output)
			results = append(results, result)
			safeCall(func() { callOnToolCallEnd(cb, result) })
		}

		t := models.LoopTurn{TurnIndex: turn, Kind: models.LoopKindToolUse, Text: parsed.Text, ToolCalls: parsed.ToolCalls, ToolResults: results}
		turns = append(turns, t)
		safeCall(func() { callOnTurnComplete(cb, t) })
	}

	return Result{FinalText: lastAssistantText, Turns: turns, TotalTurns: len(turns), HitTurnLimit: true}, nil
}

func (l *Loop) stream(ctx context.Context, prompt, systemPrompt string, images []transport.Image, cb Callbacks) (string, error) {
	safeCall(cb.OnStreamStart)

	opts := transport.Options{
		ServerName:       l.cfg.ServerName,
		AgentID:          l.cfg.AgentID,
		SystemPrompt:     systemPrompt,
		Images:           images,
		OnToolCall:       func(c models.ToolCallRequest) { safeCall(func() { callOnAgentToolCall(cb, c) }) },
		OnToolCallUpdate: func(c models.ToolCallRequest) { safeCall(func() { callOnAgentToolCallUpdate(cb, c) }) },
	}

	events, err := l.cfg.Transport.GenerateStream(ctx, prompt, opts)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for event := range events {
		if isCancelled(ctx) {
			return b.String(), ctx.Err()
		}
		switch event.Kind {
		case transport.EventDelta:
			b.WriteString(event.Delta)
			safeCall(func() { callOnStreamDelta(cb, event.Delta) })
		case transport.EventComplete:
			if event.Err != nil {
				return b.String(), event.Err
			}
			if event.Usage != nil {
				safeCall(func() { callOnTokenUsage(cb, *event.Usage) })
			}
		}
	}
	return b.String(), nil
}

func (l *Loop) tryCompact(ctx context.Context, cb Callbacks) {
	prompt := l.cfg.Conversation.Serialize() + "\n\n[System]\nSummarize the conversation above so it can replace the full history. Be concise but preserve decisions and open threads."
	result, err := l.cfg.Transport.Generate(ctx, prompt, transport.Options{ServerName: l.cfg.ServerName, AgentID: l.cfg.AgentID})
	if err != nil || strings.TrimSpace(result.Content) == "" {
		return
	}
	l.cfg.Conversation.Compact(result.Content)
	safeCall(func() { callOnCompaction(cb, result.Content) })
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func safeCall(fn func()) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn()
}

func callOnError(cb Callbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func callOnTurnComplete(cb Callbacks, t models.LoopTurn) {
	if cb.OnTurnComplete != nil {
		cb.OnTurnComplete(t)
	}
}

func callOnToolCallStart(cb Callbacks, call models.ToolCallRequest) {
	if cb.OnToolCallStart != nil {
		cb.OnToolCallStart(call)
	}
}

func callOnToolCallEnd(cb Callbacks, result models.ToolCallResult) {
	if cb.OnToolCallEnd != nil {
		cb.OnToolCallEnd(result)
	}
}

func callOnDoomLoop(cb Callbacks) {
	if cb.OnDoomLoop != nil {
		cb.OnDoomLoop()
	}
}

func callOnAgentToolCall(cb Callbacks, call models.ToolCallRequest) {
	if cb.OnAgentToolCall != nil {
		cb.OnAgentToolCall(call)
	}
}

func callOnAgentToolCallUpdate(cb Callbacks, call models.ToolCallRequest) {
	if cb.OnAgentToolCallUpdate != nil {
		cb.OnAgentToolCallUpdate(call)
	}
}

func callOnStreamDelta(cb Callbacks, text string) {
	if cb.OnStreamDelta != nil {
		cb.OnStreamDelta(text)
	}
}

func callOnTokenUsage(cb Callbacks, usage transport.Usage) {
	if cb.OnTokenUsage != nil {
		cb.OnTokenUsage(usage)
	}
}

func callOnCompaction(cb Callbacks, summary string) {
	if cb.OnCompaction != nil {
		cb.OnCompaction(summary)
	}
}

var errNoResponse = fmt.Errorf("no response received from model")

// doomLoopKey builds a stable key from a turn's tool calls: the
// concatenation of "name:stable_json(arguments)" across calls in order.
func doomLoopKey(calls []models.ToolCallRequest) string {
	var b strings.Builder
	for _, c := range calls {
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(stableJSON(c.Arguments))
		b.WriteByte('|')
	}
	return b.String()
}

// stableJSON renders a tool call's arguments with keys sorted, so two
// semantically identical argument sets produce the same string regardless
// of map iteration order.
func stableJSON(args map[string]json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.Write(args[k])
	}
	b.WriteByte('}')
	return b.String()
}
