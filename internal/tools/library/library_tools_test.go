package library

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	corelibrary "github.com/corestack/agentcore/internal/library"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/internal/stacks"
	"github.com/corestack/agentcore/internal/stacks/backend/filestore"
	"github.com/corestack/agentcore/pkg/models"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string      { return "stub" }
func (stubEmbedder) Dimension() int    { return 1 }
func (stubEmbedder) MaxBatchSize() int { return 100 }
func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = stubEmbedder{}.Embed(ctx, t)
	}
	return out, nil
}

func newTestLib(t *testing.T) *corelibrary.Library {
	t.Helper()
	s := stacks.New(stacks.Config{Backend: filestore.New(t.TempDir() + "/lib.bin")})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return corelibrary.New(corelibrary.Config{Stacks: s, Embedder: stubEmbedder{}})
}

func call(name string, args map[string]any) models.ToolCallRequest {
	out := map[string]json.RawMessage{}
	for k, v := range args {
		b, _ := json.Marshal(v)
		out[k] = b
	}
	return models.ToolCallRequest{ID: "call_1", Name: name, Arguments: out}
}

func TestLibraryToolsShelveAndSearch(t *testing.T) {
	lib := newTestLib(t)
	r := registry.New(registry.Config{})
	Register(r, lib)
	ctx := context.Background()

	shelveRes := r.Execute(ctx, call("library_shelve", map[string]any{"text": "the quick brown fox"}))
	if shelveRes.IsError {
		t.Fatalf("library_shelve = %+v", shelveRes)
	}

	searchRes := r.Execute(ctx, call("library_search", map[string]any{"query": "the quick brown fox"}))
	if searchRes.IsError || !strings.Contains(searchRes.Output, "quick brown fox") {
		t.Fatalf("library_search = %+v", searchRes)
	}
}

func TestLibraryToolsWithdrawDetectsDuplicate(t *testing.T) {
	lib := newTestLib(t)
	r := registry.New(registry.Config{})
	Register(r, lib)
	ctx := context.Background()

	r.Execute(ctx, call("library_shelve", map[string]any{"text": "same length"}))

	res := r.Execute(ctx, call("library_withdraw", map[string]any{"text": "same length"}))
	if res.IsError || !strings.Contains(res.Output, `"IsDuplicate":true`) {
		t.Fatalf("library_withdraw = %+v", res)
	}
}
