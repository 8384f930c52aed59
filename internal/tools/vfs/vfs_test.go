package vfs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/pkg/models"
)

func TestVFSToolsRoundTrip(t *testing.T) {
	fs := NewMemFS()
	r := registry.New(registry.Config{})
	Register(r, fs)

	ctx := context.Background()

	writeRes := r.Execute(ctx, callArgs("vfs_write", map[string]any{"path": "a/b.txt", "content": "hello"}))
	if writeRes.IsError {
		t.Fatalf("vfs_write = %+v", writeRes)
	}

	readRes := r.Execute(ctx, callArgs("vfs_read", map[string]any{"path": "a/b.txt"}))
	if readRes.IsError || readRes.Output != "hello" {
		t.Fatalf("vfs_read = %+v", readRes)
	}

	listRes := r.Execute(ctx, callArgs("vfs_list", map[string]any{"path": ""}))
	if listRes.IsError || listRes.Output != "a/" {
		t.Fatalf("vfs_list = %+v", listRes)
	}
}

func TestVFSReadMissingFile(t *testing.T) {
	fs := NewMemFS()
	r := registry.New(registry.Config{})
	Register(r, fs)

	res := r.Execute(context.Background(), callArgs("vfs_read", map[string]any{"path": "missing.txt"}))
	if !res.IsError {
		t.Fatalf("vfs_read of missing file = %+v, want is_error", res)
	}
}

func callArgs(name string, args map[string]any) models.ToolCallRequest {
	out := map[string]json.RawMessage{}
	for k, v := range args {
		b, _ := json.Marshal(v)
		out[k] = b
	}
	return models.ToolCallRequest{ID: "call_1", Name: name, Arguments: out}
}
