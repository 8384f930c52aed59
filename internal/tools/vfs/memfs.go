package vfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/corestack/agentcore/internal/corerr"
)

// MemFS is a flat, in-memory VFS keyed by path, useful for tests and for
// embedding this module without a real filesystem.
type MemFS struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemFS creates an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]string)}
}

var _ VFS = (*MemFS)(nil)

func (m *MemFS) Read(_ context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path]
	if !ok {
		return "", corerr.New(corerr.CodeToolNotFound, fmt.Sprintf("no such file: %s", path))
	}
	return content, nil
}

func (m *MemFS) Write(_ context.Context, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *MemFS) List(_ context.Context, path string) ([]string, error) {
	prefix := strings.TrimSuffix(path, "/") + "/"
	if path == "" || path == "/" {
		prefix = ""
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var entries []string
	for file := range m.files {
		if prefix != "" && !strings.HasPrefix(file, prefix) {
			continue
		}
		rest := strings.TrimPrefix(file, prefix)
		name := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name = rest[:idx] + "/"
		}
		if name != "" && !seen[name] {
			seen[name] = true
			entries = append(entries, name)
		}
	}
	sort.Strings(entries)
	return entries, nil
}

func (m *MemFS) Tree(ctx context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := strings.TrimSuffix(path, "/")
	if prefix != "" {
		prefix += "/"
	}

	var paths []string
	for file := range m.files {
		if strings.HasPrefix(file, prefix) {
			paths = append(paths, file)
		}
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
