package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/corestack/agentcore/internal/permission"
	"github.com/corestack/agentcore/pkg/models"
)

func echoHandler(ctx context.Context, args map[string]json.RawMessage) (string, error) {
	return "ok", nil
}

func TestRegisterGetUnregister(t *testing.T) {
	r := New(Config{})
	r.Register(models.ToolDefinition{Name: "vfs_read", Description: "read a file"}, echoHandler)

	if _, ok := r.Get("vfs_read"); !ok {
		t.Fatal("Get() after Register should find the tool")
	}
	r.Unregister("vfs_read")
	if _, ok := r.Get("vfs_read"); ok {
		t.Fatal("Get() after Unregister should not find the tool")
	}
}

func TestExecuteToolNotFound(t *testing.T) {
	r := New(Config{})
	res := r.Execute(context.Background(), models.ToolCallRequest{ID: "1", Name: "missing"})
	if !res.IsError {
		t.Fatalf("Execute() for missing tool = %+v, want IsError", res)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	r := New(Config{})
	r.Register(models.ToolDefinition{Name: "boom"}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		return "", errors.New("handler failed")
	})
	res := r.Execute(context.Background(), models.ToolCallRequest{ID: "1", Name: "boom"})
	if !res.IsError || res.Output != "handler failed" {
		t.Fatalf("Execute() = %+v, want is_error with handler's message", res)
	}
}

func TestExecuteDeniedByPolicy(t *testing.T) {
	resolver := permission.NewResolver()
	r := New(Config{
		Resolver: resolver,
		Policy:   &permission.Policy{Deny: []string{"vfs_write"}},
	})
	r.Register(models.ToolDefinition{Name: "vfs_write"}, echoHandler)

	res := r.Execute(context.Background(), models.ToolCallRequest{ID: "1", Name: "vfs_write"})
	if !res.IsError {
		t.Fatalf("Execute() = %+v, want denied", res)
	}
}

func TestFormatForSystemPromptEmptyWhenNoTools(t *testing.T) {
	r := New(Config{})
	if got := r.FormatForSystemPrompt(); got != "" {
		t.Fatalf("FormatForSystemPrompt() = %q, want empty", got)
	}
}

func TestFormatForSystemPromptListsToolsAndParameters(t *testing.T) {
	r := New(Config{})
	r.Register(models.ToolDefinition{
		Name:        "vfs_read",
		Description: "read a file",
		Parameters: map[string]models.ToolParameter{
			"path": {Type: "string", Required: true},
		},
	}, echoHandler)

	got := r.FormatForSystemPrompt()
	if got == "" {
		t.Fatal("FormatForSystemPrompt() should not be empty with tools registered")
	}
	want := "- vfs_read: read a file\n  Parameters: path (string, required)"
	if !containsLine(got, want) {
		t.Fatalf("FormatForSystemPrompt() = %q, want it to contain %q", got, want)
	}
}

func containsLine(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestParseToolCallsBasic(t *testing.T) {
	response := `Let me check that file.
<tool_use>{"name": "vfs_read", "id": "call_x", "arguments": {"path": "a.go"}}</tool_use>
I'll wait for the result.`

	parsed := ParseToolCalls(response)
	if len(parsed.ToolCalls) != 1 {
		t.Fatalf("ParseToolCalls() found %d calls, want 1", len(parsed.ToolCalls))
	}
	call := parsed.ToolCalls[0]
	if call.Name != "vfs_read" || call.ID != "call_x" {
		t.Fatalf("ParseToolCalls() call = %+v", call)
	}
	if containsLine(parsed.Text, "<tool_use>") {
		t.Fatalf("ParseToolCalls() text should have tool_use blocks removed: %q", parsed.Text)
	}
}

func TestParseToolCallsDefaultsIDAndArguments(t *testing.T) {
	response := `<tool_use>{"name": "vfs_list"}</tool_use><tool_use>{"name": "vfs_tree"}</tool_use>`
	parsed := ParseToolCalls(response)
	if len(parsed.ToolCalls) != 2 {
		t.Fatalf("ParseToolCalls() found %d calls, want 2", len(parsed.ToolCalls))
	}
	if parsed.ToolCalls[0].ID != "call_1" || parsed.ToolCalls[1].ID != "call_2" {
		t.Fatalf("ParseToolCalls() ids = %q, %q, want call_1, call_2", parsed.ToolCalls[0].ID, parsed.ToolCalls[1].ID)
	}
	if parsed.ToolCalls[0].Arguments == nil {
		t.Fatal("ParseToolCalls() should default arguments to an empty map")
	}
}

func TestParseToolCallsSkipsMalformedJSON(t *testing.T) {
	response := `<tool_use>{not json}</tool_use><tool_use>{"name": "ok"}</tool_use>`
	parsed := ParseToolCalls(response)
	if len(parsed.ToolCalls) != 1 || parsed.ToolCalls[0].Name != "ok" {
		t.Fatalf("ParseToolCalls() = %+v, want only the well-formed block", parsed.ToolCalls)
	}
}

func TestParseToolCallsSkipsMissingName(t *testing.T) {
	response := `<tool_use>{"arguments": {}}</tool_use>`
	parsed := ParseToolCalls(response)
	if len(parsed.ToolCalls) != 0 {
		t.Fatalf("ParseToolCalls() = %+v, want no calls without a name", parsed.ToolCalls)
	}
}

func TestDiscoverRegistersBuiltinsAndSources(t *testing.T) {
	src := &fakeDiscoverer{name: "github", defs: []models.ToolDefinition{{Name: "search"}}}
	r := New(Config{Sources: []Discoverer{src}})
	r.SetBuiltinRegistrar(func(r *Registry) {
		r.Register(models.ToolDefinition{Name: "library_search"}, echoHandler)
	})

	errs := r.Discover(context.Background())
	if len(errs) != 0 {
		t.Fatalf("Discover() errs = %v", errs)
	}
	if _, ok := r.Get("library_search"); !ok {
		t.Fatal("Discover() should re-register built-ins")
	}
	if _, ok := r.Get("mcp:github/search"); !ok {
		t.Fatal("Discover() should register source tools under a qualified name")
	}
}

func TestDiscoverSkipsFailingSource(t *testing.T) {
	src := &fakeDiscoverer{name: "broken", err: errors.New("unreachable")}
	r := New(Config{Sources: []Discoverer{src}})

	errs := r.Discover(context.Background())
	if len(errs) != 1 {
		t.Fatalf("Discover() errs = %v, want 1", errs)
	}
}

type fakeDiscoverer struct {
	name string
	defs []models.ToolDefinition
	err  error
}

func (f *fakeDiscoverer) ServerName() string { return f.name }

func (f *fakeDiscoverer) ListTools(ctx context.Context) ([]models.ToolDefinition, map[string]Handler, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	handlers := make(map[string]Handler, len(f.defs))
	for _, d := range f.defs {
		handlers[d.Name] = echoHandler
	}
	return f.defs, handlers, nil
}
