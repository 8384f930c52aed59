// Package library registers the library_search, library_shelve, and
// library_withdraw tools over an internal/library.Library, including the
// scoped variants used when a registry is built for a particular shelf.
package library

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corestack/agentcore/internal/library"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/pkg/models"
)

// Register installs library_search, library_shelve, and library_withdraw on
// r, scoped to lib (which may itself be a shelf view via lib.Shelf).
func Register(r *registry.Registry, lib *library.Library) {
	r.Register(models.ToolDefinition{
		Name:        "library_search",
		Description: "Search the library for passages relevant to a query.",
		Category:    "library",
		Parameters: map[string]models.ToolParameter{
			"query":       {Type: "string", Required: true},
			"max_results": {Type: "integer", Description: "defaults to 5"},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		query, err := stringArg(args, "query")
		if err != nil {
			return "", err
		}
		maxResults := intArgOr(args, "max_results", 5)

		results, err := lib.Search(ctx, query, maxResults, 0)
		if err != nil {
			return "", err
		}
		out := make([]map[string]any, 0, len(results))
		for _, r := range results {
			out = append(out, map[string]any{"id": r.Volume.ID, "text": r.Volume.Text, "score": r.Score})
		}
		b, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "library_shelve",
		Description: "Add a passage to the library, tagged with optional metadata.",
		Category:    "library",
		Parameters: map[string]models.ToolParameter{
			"text":  {Type: "string", Required: true},
			"topic": {Type: "string", Description: "optional topic tag"},
		},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		text, err := stringArg(args, "text")
		if err != nil {
			return "", err
		}
		var metadata map[string]string
		if topic, ok := optionalStringArg(args, "topic"); ok {
			metadata = map[string]string{"topic": topic}
		}
		id, err := lib.Add(ctx, text, metadata)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"id": %q}`, id), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "library_withdraw",
		Description: "Check whether a passage is already a near-duplicate of something in the library.",
		Category:    "library",
		Parameters: map[string]models.ToolParameter{
			"text":      {Type: "string", Required: true},
			"threshold": {Type: "number", Description: "defaults to 0.9"},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		text, err := stringArg(args, "text")
		if err != nil {
			return "", err
		}
		threshold := float32(floatArgOr(args, "threshold", 0))
		report, err := lib.CheckDuplicate(ctx, text, threshold)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(report)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
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

func intArgOr(args map[string]json.RawMessage, name string, fallback int) int {
	raw, ok := args[name]
	if !ok {
		return fallback
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return fallback
	}
	return n
}

func floatArgOr(args map[string]json.RawMessage, name string, fallback float64) float64 {
	raw, ok := args[name]
	if !ok {
		return fallback
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return fallback
	}
	return f
}
