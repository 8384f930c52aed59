// Package task registers the task_create, task_get, task_update,
// task_delete, and task_list tools: a minimal in-memory task tracker
// exposed to the agentic loop as tool calls.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corestack/agentcore/internal/corerr"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/pkg/models"
	"github.com/google/uuid"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Task is one tracked unit of work.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is an in-memory task list. The zero value is not usable;
// construct with NewStore.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Register installs all five task_* tools on r, backed by store.
func Register(r *registry.Registry, store *Store) {
	r.Register(models.ToolDefinition{
		Name:        "task_create",
		Description: "Create a new task and return its id.",
		Category:    "task",
		Parameters: map[string]models.ToolParameter{
			"title": {Type: "string", Required: true},
		},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		title, err := stringArg(args, "title")
		if err != nil {
			return "", err
		}
		id := store.create(title)
		return fmt.Sprintf(`{"id": %q}`, id), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "task_get",
		Description: "Fetch a task by id.",
		Category:    "task",
		Parameters: map[string]models.ToolParameter{
			"id": {Type: "string", Required: true},
		},
		Annotations: &models.ToolAnnotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		id, err := stringArg(args, "id")
		if err != nil {
			return "", err
		}
		t, ok := store.get(id)
		if !ok {
			return "", corerr.New(corerr.CodeToolNotFound, fmt.Sprintf("no such task: %s", id))
		}
		return marshalTask(t), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "task_update",
		Description: "Update a task's title and/or status.",
		Category:    "task",
		Parameters: map[string]models.ToolParameter{
			"id":     {Type: "string", Required: true},
			"title":  {Type: "string"},
			"status": {Type: "string", Description: "one of open, in_progress, done"},
		},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		id, err := stringArg(args, "id")
		if err != nil {
			return "", err
		}
		title, _ := optionalStringArg(args, "title")
		status, _ := optionalStringArg(args, "status")

		t, ok := store.update(id, title, Status(status))
		if !ok {
			return "", corerr.New(corerr.CodeToolNotFound, fmt.Sprintf("no such task: %s", id))
		}
		return marshalTask(t), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "task_delete",
		Description: "Delete a task by id.",
		Category:    "task",
		Parameters: map[string]models.ToolParameter{
			"id": {Type: "string", Required: true},
		},
		Annotations: &models.ToolAnnotations{Destructive: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		id, err := stringArg(args, "id")
		if err != nil {
			return "", err
		}
		if !store.delete(id) {
			return "", corerr.New(corerr.CodeToolNotFound, fmt.Sprintf("no such task: %s", id))
		}
		return fmt.Sprintf("deleted %s", id), nil
	})

	r.Register(models.ToolDefinition{
		Name:        "task_list",
		Description: "List all tasks, ordered by creation time.",
		Category:    "task",
		Annotations: &models.ToolAnnotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, args map[string]json.RawMessage) (string, error) {
		tasks := store.list()
		out, err := json.Marshal(tasks)
		if err != nil {
			return "", err
		}
		return string(out), nil
	})
}

func (s *Store) create(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	id := uuid.NewString()
	s.tasks[id] = &Task{ID: id, Title: title, Status: StatusOpen, CreatedAt: now, UpdatedAt: now}
	return id
}

func (s *Store) get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

func (s *Store) update(id, title string, status Status) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	if title != "" {
		t.Title = title
	}
	if status != "" {
		t.Status = status
	}
	t.UpdatedAt = time.Now()
	return *t, true
}

func (s *Store) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}

func (s *Store) list() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func marshalTask(t Task) string {
	out, _ := json.Marshal(t)
	return string(out)
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
