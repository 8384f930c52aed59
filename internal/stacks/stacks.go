// Package stacks implements the embedded, crash-tolerant vector store
// described as "Stacks": a content-addressed collection of volumes
// (text, embedding, metadata, timestamp) with cosine vector search, lexical
// text search, metadata/date filters, and a hybrid ranker.
package stacks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corestack/agentcore/internal/corerr"
	"github.com/corestack/agentcore/internal/kernel"
	"github.com/corestack/agentcore/internal/stacks/backend"
	"github.com/corestack/agentcore/pkg/models"
)

// Config configures a Stacks instance.
type Config struct {
	// Backend persists volumes across process restarts. Required.
	Backend backend.Backend

	// AutoSave flushes to the backend after every mutating operation when
	// true. When false, callers must call Save explicitly.
	AutoSave bool
}

// Stacks is a durable, in-memory-resident collection of volumes. All
// mutating operations serialize against each other and against Save; reads
// observe a consistent snapshot.
type Stacks struct {
	mu      sync.RWMutex
	backend backend.Backend
	autoSave bool

	volumes map[string]*models.Volume
	order   []string // insertion order, for stable iteration
	dirty   bool
	loaded  bool
}

// New creates a Stacks instance bound to the given backend. Load must be
// called before the store is used, matching the documented
// load -> (add|delete|clear|search)* -> (save|dispose) lifecycle.
func New(cfg Config) *Stacks {
	return &Stacks{
		backend:  cfg.Backend,
		autoSave: cfg.AutoSave,
		volumes:  make(map[string]*models.Volume),
	}
}

// Load reads the backing store. Individual corrupt or truncated records are
// skipped and the store is marked dirty so the next Save rewrites only the
// good entries; a backend failure that precludes reading any records at all
// is reported as STACKS_CORRUPT.
func (s *Stacks) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.backend.Load(ctx)
	if err != nil {
		return corerr.Wrap(corerr.CodeStacksCorrupt, "failed to read backing store", err)
	}

	s.volumes = make(map[string]*models.Volume, len(records))
	s.order = s.order[:0]
	dirty := false

	// Iterate in sorted key order so Load is deterministic across runs
	// even though map iteration order is not.
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, id := range keys {
		vol, err := decodeVolume(id, records[id])
		if err != nil {
			dirty = true
			continue
		}
		s.volumes[id] = vol
		s.order = append(s.order, id)
	}

	s.dirty = dirty
	s.loaded = true
	return nil
}

// Add validates and appends a single volume, returning its assigned id.
func (s *Stacks) Add(ctx context.Context, text string, embedding []float32, metadata map[string]string) (string, error) {
	if text == "" {
		return "", corerr.New(corerr.CodeStacksEmptyText, "volume text must not be empty")
	}
	if len(embedding) == 0 {
		return "", corerr.New(corerr.CodeStacksEmptyEmbed, "volume embedding must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.appendLocked(text, embedding, metadata)

	if s.autoSave {
		if err := s.saveLocked(ctx); err != nil {
			return "", err
		}
	}
	return id, nil
}

// BatchEntry is one entry of an AddBatch call.
type BatchEntry struct {
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// AddBatch validates every entry before mutating the store; if any entry is
// invalid, nothing is added.
func (s *Stacks) AddBatch(ctx context.Context, entries []BatchEntry) ([]string, error) {
	for _, e := range entries {
		if e.Text == "" {
			return nil, corerr.New(corerr.CodeStacksEmptyText, "volume text must not be empty")
		}
		if len(e.Embedding) == 0 {
			return nil, corerr.New(corerr.CodeStacksEmptyEmbed, "volume embedding must not be empty")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, s.appendLocked(e.Text, e.Embedding, e.Metadata))
	}

	if s.autoSave && len(entries) > 0 {
		if err := s.saveLocked(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *Stacks) appendLocked(text string, embedding []float32, metadata map[string]string) string {
	id := uuid.NewString()
	vol := &models.Volume{
		ID:        id,
		Text:      text,
		Embedding: append([]float32(nil), embedding...),
		Timestamp: time.Now().UnixMilli(),
	}
	if metadata != nil {
		vol.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			vol.Metadata[k] = v
		}
	}
	s.volumes[id] = vol
	s.order = append(s.order, id)
	s.dirty = true
	return id
}

// Delete removes a volume by id. It is a no-op, and does not mark the store
// dirty, if the id is not present.
func (s *Stacks) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volumes[id]; !ok {
		return false, nil
	}
	s.deleteLocked(id)

	if s.autoSave {
		if err := s.saveLocked(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// DeleteBatch removes every given id present in the store and returns the
// count actually removed.
func (s *Stacks) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, id := range ids {
		if _, ok := s.volumes[id]; ok {
			s.deleteLocked(id)
			count++
		}
	}

	if s.autoSave && count > 0 {
		if err := s.saveLocked(ctx); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (s *Stacks) deleteLocked(id string) {
	delete(s.volumes, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.dirty = true
}

// Clear removes all volumes.
func (s *Stacks) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.volumes) == 0 {
		return nil
	}
	s.volumes = make(map[string]*models.Volume)
	s.order = nil
	s.dirty = true

	if s.autoSave {
		return s.saveLocked(ctx)
	}
	return nil
}

// GetByID returns a copy of the volume with the given id.
func (s *Stacks) GetByID(id string) (*models.Volume, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vol, ok := s.volumes[id]
	if !ok {
		return nil, false
	}
	return vol.Clone(), true
}

// GetAll returns a stable snapshot of every volume in insertion order.
func (s *Stacks) GetAll() []*models.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Volume, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.volumes[id].Clone())
	}
	return out
}

// Size returns the number of volumes currently stored.
func (s *Stacks) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.volumes)
}

// IsDirty reports whether the in-memory state has unsaved changes.
func (s *Stacks) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Search performs cosine similarity search against every volume whose
// embedding dimension matches the query, dropping results below threshold
// and returning at most maxResults, sorted by descending score (stable on
// ties).
func (s *Stacks) Search(queryEmbedding []float32, maxResults int, threshold float32) []models.Lookup {
	if len(queryEmbedding) == 0 || maxResults == 0 {
		return []models.Lookup{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.Lookup, 0, len(s.order))
	for _, id := range s.order {
		vol := s.volumes[id]
		if len(vol.Embedding) != len(queryEmbedding) {
			continue
		}
		score := kernel.Cosine(queryEmbedding, vol.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, models.Lookup{Volume: vol.Clone(), Score: score})
	}

	sortLookupsDesc(results)
	return truncateLookups(results, maxResults)
}

func sortLookupsDesc(results []models.Lookup) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func truncateLookups(results []models.Lookup, maxResults int) []models.Lookup {
	if maxResults > 0 && len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}

// Save snapshots the current volumes and writes them via the backend,
// clearing the dirty flag on success.
func (s *Stacks) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Stacks) saveLocked(ctx context.Context) error {
	records := make(map[string][]byte, len(s.volumes))
	for id, vol := range s.volumes {
		records[id] = encodeVolume(vol)
	}
	if err := s.backend.Save(ctx, records); err != nil {
		return corerr.Wrap(corerr.CodeStacksIO, "failed to write backing store", err)
	}
	s.dirty = false
	return nil
}

// Dispose flushes any unsaved changes and releases the backend. It is safe
// to call more than once.
func (s *Stacks) Dispose(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		if err := s.saveLocked(ctx); err != nil {
			return err
		}
	}
	return s.backend.Close()
}
