package task

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/pkg/models"
)

func call(name string, args map[string]any) models.ToolCallRequest {
	out := map[string]json.RawMessage{}
	for k, v := range args {
		b, _ := json.Marshal(v)
		out[k] = b
	}
	return models.ToolCallRequest{ID: "call_1", Name: name, Arguments: out}
}

func TestTaskLifecycle(t *testing.T) {
	store := NewStore()
	r := registry.New(registry.Config{})
	Register(r, store)
	ctx := context.Background()

	createRes := r.Execute(ctx, call("task_create", map[string]any{"title": "write tests"}))
	if createRes.IsError {
		t.Fatalf("task_create = %+v", createRes)
	}
	var created struct{ ID string `json:"id"` }
	if err := json.Unmarshal([]byte(createRes.Output), &created); err != nil || created.ID == "" {
		t.Fatalf("task_create output = %q", createRes.Output)
	}

	getRes := r.Execute(ctx, call("task_get", map[string]any{"id": created.ID}))
	if getRes.IsError || !strings.Contains(getRes.Output, "write tests") {
		t.Fatalf("task_get = %+v", getRes)
	}

	updateRes := r.Execute(ctx, call("task_update", map[string]any{"id": created.ID, "status": "done"}))
	if updateRes.IsError || !strings.Contains(updateRes.Output, `"done"`) {
		t.Fatalf("task_update = %+v", updateRes)
	}

	listRes := r.Execute(ctx, call("task_list", nil))
	if listRes.IsError || !strings.Contains(listRes.Output, created.ID) {
		t.Fatalf("task_list = %+v", listRes)
	}

	deleteRes := r.Execute(ctx, call("task_delete", map[string]any{"id": created.ID}))
	if deleteRes.IsError {
		t.Fatalf("task_delete = %+v", deleteRes)
	}

	getAfterDelete := r.Execute(ctx, call("task_get", map[string]any{"id": created.ID}))
	if !getAfterDelete.IsError {
		t.Fatal("task_get after delete should error")
	}
}

func TestTaskGetMissing(t *testing.T) {
	store := NewStore()
	r := registry.New(registry.Config{})
	Register(r, store)

	res := r.Execute(context.Background(), call("task_get", map[string]any{"id": "nope"}))
	if !res.IsError {
		t.Fatal("task_get of missing id should error")
	}
}
