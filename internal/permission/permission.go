// Package permission implements the allow/deny policy resolver consulted by
// the tool registry's execute gate.
package permission

import (
	"strings"
	"sync"
)

// Profile is a pre-configured tool access level.
type Profile string

const (
	ProfileMinimal Profile = "minimal"
	ProfileCoding  Profile = "coding"
	ProfileFull    Profile = "full"
)

// DefaultGroups are the built-in tool groups a Policy's Allow/Deny lists may
// reference via "group:<name>".
var DefaultGroups = map[string][]string{
	"group:library":  {"library_search", "library_shelve", "library_withdraw"},
	"group:vfs":      {"vfs_read", "vfs_write", "vfs_list", "vfs_tree"},
	"group:task":     {"task_create", "task_get", "task_update", "task_delete", "task_list"},
	"group:subagent": {"subagent_spawn", "subagent_delegate"},
}

var profileGroups = map[Profile][]string{
	ProfileMinimal: {"group:library"},
	ProfileCoding:  {"group:library", "group:vfs", "group:task"},
	ProfileFull:    {"group:library", "group:vfs", "group:task", "group:subagent"},
}

// Policy combines a profile with explicit allow/deny lists; deny always
// overrides allow. ByProvider maps a tool's provider prefix (e.g.
// "mcp:github") to a policy that replaces this one for that provider's tools.
type Policy struct {
	Profile    Profile
	Allow      []string
	Deny       []string
	ByProvider map[string]*Policy
}

// Decision explains why a tool was allowed or denied.
type Decision struct {
	Allowed bool
	Tool    string
	Reason  string
}

// Resolver expands group references and evaluates a Policy against a tool
// name. Construct with NewResolver: the zero value knows no groups, and
// AddGroup on it panics.
type Resolver struct {
	mu     sync.RWMutex
	groups map[string][]string
}

// NewResolver creates a Resolver seeded with DefaultGroups.
func NewResolver() *Resolver {
	groups := make(map[string][]string, len(DefaultGroups))
	for k, v := range DefaultGroups {
		groups[k] = v
	}
	return &Resolver{groups: groups}
}

// AddGroup registers a custom tool group.
func (r *Resolver) AddGroup(name string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = tools
}

// Resolve decides whether tool is allowed under policy. A nil policy allows
// everything (no gating configured). Provider is the tool's qualifying
// prefix, e.g. "mcp:github" for "mcp:github/search"; pass "" for built-ins.
func (r *Resolver) Resolve(policy *Policy, provider, tool string) Decision {
	if policy == nil {
		return Decision{Allowed: true, Tool: tool, Reason: "no policy configured"}
	}

	if sub, ok := policy.ByProvider[provider]; ok && sub != nil {
		policy = sub
	}

	if r.matchesAny(policy.Deny, tool) {
		return Decision{Allowed: false, Tool: tool, Reason: "denied by explicit deny rule"}
	}
	if r.matchesAny(policy.Allow, tool) {
		return Decision{Allowed: true, Tool: tool, Reason: "allowed by explicit allow rule"}
	}
	if r.matchesAny(profileGroups[policy.Profile], tool) {
		return Decision{Allowed: true, Tool: tool, Reason: "allowed by profile " + string(policy.Profile)}
	}
	return Decision{Allowed: false, Tool: tool, Reason: "not covered by profile or allow list"}
}

func (r *Resolver) matchesAny(items []string, tool string) bool {
	for _, item := range r.expand(items) {
		if matchPattern(item, tool) {
			return true
		}
	}
	return false
}

func (r *Resolver) expand(items []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		if tools, ok := r.groups[item]; ok {
			for _, t := range tools {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
			continue
		}
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func matchPattern(pattern, tool string) bool {
	if pattern == "" || tool == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(tool, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == tool
}
