// Package registry implements the tool registry: a uniform dispatch layer
// for built-in, host, and MCP-provided tools, including permission gating,
// the textual system-prompt protocol, and the <tool_use> response parser.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corestack/agentcore/internal/permission"
	"github.com/corestack/agentcore/pkg/models"
)

var toolUsePattern = regexp.MustCompile(`(?s)<tool_use>(.*?)</tool_use>`)

// Handler executes one tool call and returns its textual output. A non-nil
// error is caught by Execute and mapped to an is_error result carrying the
// error's message.
type Handler func(ctx context.Context, args map[string]json.RawMessage) (string, error)

// entry pairs a tool's catalog definition with its handler.
type entry struct {
	def     models.ToolDefinition
	handler Handler
}

// Discoverer enumerates tools exposed by a connected source (typically an
// MCP server) so Discover can register them under a qualified name.
type Discoverer interface {
	// ServerName identifies the source, used to build the "mcp:<server>/<tool>" prefix.
	ServerName() string
	// ListTools returns the source's current tool catalog and handlers.
	ListTools(ctx context.Context) ([]models.ToolDefinition, map[string]Handler, error)
}

// Registry is the tool catalog and dispatcher. The zero value is not
// usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]entry
	builtin func(r *Registry) // re-registers built-ins during Discover

	resolver *permission.Resolver
	policy   *permission.Policy

	sources []Discoverer
}

// Config configures a new Registry.
type Config struct {
	// Resolver and Policy, if both set, gate Execute: calls are checked
	// against Resolve(Policy, provider, name) before the handler runs.
	Resolver *permission.Resolver
	Policy   *permission.Policy

	// Sources are consulted by Discover to register MCP-provided tools.
	Sources []Discoverer
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	return &Registry{
		tools:    make(map[string]entry),
		resolver: cfg.Resolver,
		policy:   cfg.Policy,
		sources:  cfg.Sources,
	}
}

// Register adds a tool under definition.Name, replacing any existing entry
// with that name.
func (r *Registry) Register(def models.ToolDefinition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = entry{def: def, handler: handler}
}

// Unregister removes a tool by name. It is a no-op if the name is absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool's definition by name.
func (r *Registry) Get(name string) (models.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.def, ok
}

// GetToolDefinitions returns every registered tool's definition, sorted by
// name for deterministic output.
func (r *Registry) GetToolDefinitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// FormatForSystemPrompt renders a deterministic system-prompt block: a
// preamble explaining the <tool_use> protocol, then one line per tool and
// its parameters. Returns "" when no tools are registered.
func (r *Registry) FormatForSystemPrompt() string {
	defs := r.GetToolDefinitions()
	if len(defs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("You have access to the following tools. To call one, emit a block of ")
	b.WriteString("the exact form <tool_use>{\"name\": \"...\", \"id\": \"...\", \"arguments\": {...}}</tool_use>. ")
	b.WriteString("You may emit multiple tool_use blocks in one response. Wait for their results ")
	b.WriteString("before continuing unless you are confident of the outcome.\n\n")

	for _, def := range defs {
		b.WriteString("- ")
		b.WriteString(def.Name)
		b.WriteString(": ")
		b.WriteString(def.Description)
		b.WriteByte('\n')

		if len(def.Parameters) == 0 {
			continue
		}
		names := make([]string, 0, len(def.Parameters))
		for name := range def.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, name := range names {
			p := def.Parameters[name]
			if p.Required {
				parts = append(parts, fmt.Sprintf("%s (%s, required)", name, p.Type))
			} else {
				parts = append(parts, fmt.Sprintf("%s (%s)", name, p.Type))
			}
		}
		b.WriteString("  Parameters: ")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}

// Execute looks up call.Name and runs its handler, applying the configured
// permission resolver first. Lookup misses, permission denials, and
// handler-raised errors are all reported as an is_error result rather than
// a Go error.
func (r *Registry) Execute(ctx context.Context, call models.ToolCallRequest) models.ToolCallResult {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return models.ToolCallResult{
			ID:      call.ID,
			Name:    call.Name,
			Output:  fmt.Sprintf("tool not found: %s", call.Name),
			IsError: true,
		}
	}

	if r.resolver != nil {
		decision := r.resolver.Resolve(r.policy, providerOf(call.Name), call.Name)
		if !decision.Allowed {
			return models.ToolCallResult{
				ID:      call.ID,
				Name:    call.Name,
				Output:  fmt.Sprintf("permission denied: %s", decision.Reason),
				IsError: true,
			}
		}
	}

	start := time.Now()
	output, err := e.handler(ctx, call.Arguments)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		return models.ToolCallResult{
			ID:         call.ID,
			Name:       call.Name,
			Output:     err.Error(),
			IsError:    true,
			DurationMs: duration,
		}
	}
	return models.ToolCallResult{
		ID:         call.ID,
		Name:       call.Name,
		Output:     output,
		DurationMs: duration,
	}
}

// providerOf returns the "mcp:<server>" prefix of a qualified tool name, or
// "" for an unqualified (built-in) name.
func providerOf(name string) string {
	if idx := strings.Index(name, "/"); idx > 0 && strings.HasPrefix(name, "mcp:") {
		return name[:idx]
	}
	return ""
}

// ParsedResponse is the outcome of ParseToolCalls.
type ParsedResponse struct {
	Text      string
	ToolCalls []models.ToolCallRequest
}

// ParseToolCalls scans response for <tool_use>...</tool_use> blocks (DOTALL
// semantics), parsing each block's inner JSON as a tool call. A string
// "name" field is required; "id" defaults to "call_<N>" (1-based across the
// response) and "arguments" defaults to {}. Malformed JSON blocks are
// silently skipped. Text is response with every tool_use block removed and
// the result trimmed.
func ParseToolCalls(response string) ParsedResponse {
	matches := toolUsePattern.FindAllStringSubmatchIndex(response, -1)

	calls := make([]models.ToolCallRequest, 0, len(matches))
	var b strings.Builder
	last := 0
	n := 0

	for _, m := range matches {
		blockStart, blockEnd := m[0], m[1]
		innerStart, innerEnd := m[2], m[3]

		b.WriteString(response[last:blockStart])
		last = blockEnd

		var raw struct {
			Name      string                     `json:"name"`
			ID        string                     `json:"id"`
			Arguments map[string]json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(response[innerStart:innerEnd]), &raw); err != nil || raw.Name == "" {
			continue
		}
		n++
		id := raw.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", n)
		}
		args := raw.Arguments
		if args == nil {
			args = map[string]json.RawMessage{}
		}
		calls = append(calls, models.ToolCallRequest{ID: id, Name: raw.Name, Arguments: args})
	}
	b.WriteString(response[last:])

	return ParsedResponse{Text: strings.TrimSpace(b.String()), ToolCalls: calls}
}

// Discover clears the registry, re-registers built-ins (if configured via
// SetBuiltinRegistrar), then enumerates every configured Discoverer and registers
// its tools under "mcp:<server>/<tool>". Sources that fail to enumerate are
// skipped; their tools are simply absent rather than the call failing.
func (r *Registry) Discover(ctx context.Context) []error {
	r.mu.Lock()
	r.tools = make(map[string]entry)
	builtin := r.builtin
	sources := append([]Discoverer(nil), r.sources...)
	r.mu.Unlock()

	if builtin != nil {
		builtin(r)
	}

	var errs []error
	for _, src := range sources {
		defs, handlers, err := src.ListTools(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("discover %s: %w", src.ServerName(), err))
			continue
		}
		for _, def := range defs {
			qualified := fmt.Sprintf("mcp:%s/%s", src.ServerName(), def.Name)
			h, ok := handlers[def.Name]
			if !ok {
				continue
			}
			def.Name = qualified
			r.Register(def, h)
		}
	}
	return errs
}

// SetBuiltinRegistrar installs the callback Discover invokes (after
// clearing the catalog) to re-register built-in tools before any MCP
// sources are enumerated.
func (r *Registry) SetBuiltinRegistrar(fn func(r *Registry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtin = fn
}
