// Package library implements the Library: a topic-indexed facade over
// Stacks that injects an embedding provider, tracks a shelf metadata key,
// and adds duplicate detection on top of the raw vector store.
package library

import (
	"context"

	"github.com/corestack/agentcore/internal/corerr"
	"github.com/corestack/agentcore/internal/library/embeddings"
	"github.com/corestack/agentcore/internal/stacks"
	"github.com/corestack/agentcore/pkg/models"
)

// shelfKey is the metadata key used to scope volumes to a named shelf.
const shelfKey = "shelf"

// topicKey is the metadata key Library reserves for topic filtering.
const topicKey = "topic"

// DefaultDuplicateThreshold is used by CheckDuplicate when no threshold is given.
const DefaultDuplicateThreshold = 0.9

// Library wraps a Stacks instance with an embedding provider and an
// optional shelf scope. The zero value is not usable; construct with New.
type Library struct {
	stacks   *stacks.Stacks
	embedder embeddings.Provider
	shelf    string // "" means unscoped (the root library)
}

// Config configures a new Library.
type Config struct {
	Stacks   *stacks.Stacks
	Embedder embeddings.Provider
}

// New builds a root (unscoped) Library over the given Stacks and provider.
func New(cfg Config) *Library {
	return &Library{stacks: cfg.Stacks, embedder: cfg.Embedder}
}

// Add embeds text once and delegates to Stacks.Add. If this Library is a
// shelf, the shelf's name is stamped into the volume's metadata.
func (l *Library) Add(ctx context.Context, text string, metadata map[string]string) (string, error) {
	vec, err := l.embed(ctx, text)
	if err != nil {
		return "", err
	}
	return l.stacks.Add(ctx, text, vec, l.scopeMetadata(metadata))
}

// Search embeds query and delegates to Stacks.Search, restricted to this
// Library's shelf scope when one is set.
func (l *Library) Search(ctx context.Context, query string, maxResults int, threshold float32) ([]models.Lookup, error) {
	vec, err := l.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results := l.stacks.Search(vec, maxResults, threshold)
	if l.shelf == "" {
		return results, nil
	}
	return filterLookupsByShelf(results, l.shelf), nil
}

// DuplicateReport is the result of CheckDuplicate.
type DuplicateReport struct {
	IsDuplicate bool
	Similarity  float32
	MatchID     string
}

// CheckDuplicate embeds text and reports whether any existing volume (within
// this Library's scope) scores at or above threshold against it. A
// threshold of 0 uses DefaultDuplicateThreshold.
func (l *Library) CheckDuplicate(ctx context.Context, text string, threshold float32) (DuplicateReport, error) {
	if threshold == 0 {
		threshold = DefaultDuplicateThreshold
	}
	vec, err := l.embed(ctx, text)
	if err != nil {
		return DuplicateReport{}, err
	}

	limit := 1
	if l.shelf != "" {
		limit = l.stacks.Size()
	}
	results := l.stacks.Search(vec, limit, 0)
	if l.shelf != "" {
		results = filterLookupsByShelf(results, l.shelf)
	}
	if len(results) == 0 {
		return DuplicateReport{}, nil
	}
	best := results[0]
	return DuplicateReport{
		IsDuplicate: best.Score >= threshold,
		Similarity:  best.Score,
		MatchID:     best.Volume.ID,
	}, nil
}

// FilterByTopic returns every volume (within scope) tagged with any of the
// given topics.
func (l *Library) FilterByTopic(topics []string) []*models.Volume {
	if len(topics) == 0 {
		return nil
	}
	matches := make(map[string]*models.Volume)
	for _, topic := range topics {
		for _, vol := range l.stacks.FilterByMetadata([]stacks.MetadataFilter{{Key: topicKey, Mode: stacks.FilterEq, Value: topic}}) {
			matches[vol.ID] = vol
		}
	}
	out := make([]*models.Volume, 0, len(matches))
	for _, vol := range l.stacks.GetAll() {
		if v, ok := matches[vol.ID]; ok {
			if l.shelf == "" || v.Metadata[shelfKey] == l.shelf {
				out = append(out, v)
			}
		}
	}
	return out
}

// Shelf returns a scoped sub-view of this Library restricted to volumes
// tagged with the given shelf name. Adds performed through the returned
// Library are stamped with that shelf name; searches and topic filters are
// restricted to it. Shelves do not nest: Shelf always scopes from the root
// stacks, so calling Shelf on a shelf re-targets rather than compounds.
func (l *Library) Shelf(name string) *Library {
	return &Library{stacks: l.stacks, embedder: l.embedder, shelf: name}
}

// ShelfName returns the name of this Library's shelf scope, or "" if this
// is the root library.
func (l *Library) ShelfName() string {
	return l.shelf
}

func (l *Library) embed(ctx context.Context, text string) ([]float32, error) {
	if l.embedder == nil {
		return nil, corerr.New(corerr.CodeEmbedding, "library has no embedding provider configured")
	}
	if text == "" {
		return nil, corerr.New(corerr.CodeStacksEmptyText, "text must not be empty")
	}
	return l.embedder.Embed(ctx, text)
}

func (l *Library) scopeMetadata(metadata map[string]string) map[string]string {
	if l.shelf == "" {
		return metadata
	}
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[shelfKey] = l.shelf
	return out
}

func filterLookupsByShelf(results []models.Lookup, shelf string) []models.Lookup {
	out := make([]models.Lookup, 0, len(results))
	for _, r := range results {
		if r.Volume.Metadata[shelfKey] == shelf {
			out = append(out, r)
		}
	}
	return out
}
