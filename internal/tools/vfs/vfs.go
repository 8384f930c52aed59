// Package vfs registers the vfs_read, vfs_write, vfs_list, and vfs_tree
// tools against a tool registry. The virtual filesystem itself is an
// external collaborator: this package only adapts an injected VFS to the
// registry's tool protocol.
package vfs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/pkg/models"
)

// VFS is the minimal filesystem contract the host provides; an in-memory
// implementation, MemFS, is in memfs.go for tests and simple embedders.
type VFS interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, content string) error
	List(ctx context.Context, path string) ([]string, error)
	Tree(ctx context.Context, path string) (string, error)
}

// Register installs all four vfs_* tools on r, backed by fs.
func Register(r *registry.Registry, fs VFS) {
	r.Register(models.ToolDefinition{
		Name:        "vfs_read",
		Description: "Read the full contents of a file.",
		Category:    "vfs",
		Parameters: map[string]models.ToolParameter{
			"path": {Type: "string", Required: true, Description: "path to read"},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return "", err
		}
		return fs.Read(ctx, path)
	})

	r.Register(models.ToolDefinition{
		Name:        "vfs_write",
		Description: "Write content to a file, creating or overwriting it.",
		Category:    "vfs",
		Parameters: map[string]models.ToolParameter{
			"path":    {Type: "string", Required: true},
			"content": {Type: "string", Required: true},
		},
		Annotations: &models.ToolAnnotations{Destructive: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return "", err
		}
		content, err := stringArg(args, "content")
		if err != nil {
			return "", err
		}
		if err := fs.Write(ctx, path, content); err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "vfs_list",
		Description: "List the entries of a directory.",
		Category:    "vfs",
		Parameters: map[string]models.ToolParameter{
			"path": {Type: "string", Required: true},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return "", err
		}
		entries, err := fs.List(ctx, path)
		if err != nil {
			return "", err
		}
		return strings.Join(entries, "\n"), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "vfs_tree",
		Description: "Render a recursive tree view rooted at path.",
		Category:    "vfs",
		Parameters: map[string]models.ToolParameter{
			"path": {Type: "string", Required: true},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return "", err
		}
		return fs.Tree(ctx, path)
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
