package permission

import "testing"

func TestResolveNilPolicyAllowsEverything(t *testing.T) {
	r := NewResolver()
	d := r.Resolve(nil, "", "vfs_write")
	if !d.Allowed {
		t.Fatalf("Resolve(nil, ...) = %+v, want allowed", d)
	}
}

func TestDenyOverridesAllow(t *testing.T) {
	r := NewResolver()
	policy := &Policy{Allow: []string{"vfs_write"}, Deny: []string{"vfs_write"}}
	d := r.Resolve(policy, "", "vfs_write")
	if d.Allowed {
		t.Fatalf("Resolve() = %+v, want denied (deny overrides allow)", d)
	}
}

func TestProfileExpandsGroups(t *testing.T) {
	r := NewResolver()
	policy := &Policy{Profile: ProfileCoding}
	if !r.Resolve(policy, "", "vfs_read").Allowed {
		t.Fatal("coding profile should allow vfs_read")
	}
	if r.Resolve(policy, "", "subagent_spawn").Allowed {
		t.Fatal("coding profile should not allow subagent_spawn")
	}
}

func TestByProviderScopesSubPolicy(t *testing.T) {
	r := NewResolver()
	policy := &Policy{
		Profile: ProfileMinimal,
		ByProvider: map[string]*Policy{
			"mcp:github": {Allow: []string{"mcp:github/search"}},
		},
	}
	if !r.Resolve(policy, "mcp:github", "mcp:github/search").Allowed {
		t.Fatal("by-provider policy should allow its own allow-listed tool")
	}
	if r.Resolve(policy, "mcp:github", "mcp:github/delete").Allowed {
		t.Fatal("by-provider policy should not fall back to the outer profile")
	}
}

func TestWildcardGroupMatch(t *testing.T) {
	r := NewResolver()
	r.AddGroup("group:custom", []string{"custom_*"})
	policy := &Policy{Allow: []string{"group:custom"}}
	if !r.Resolve(policy, "", "custom_tool").Allowed {
		t.Fatal("wildcard pattern in expanded group should match")
	}
}
