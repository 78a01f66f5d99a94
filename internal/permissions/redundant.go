package permissions

import "sort"

// RedundantOverride is a per-user override whose value equals the current
// role default. It arises when the role default changes after the override
// was written.
type RedundantOverride struct {
	Kind  Kind   `json:"kind"`
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// RedundantOverrides reports the overrides of s that no longer differ from
// the role base. Nothing is modified.
func RedundantOverrides(perms AppPermissions, s Subject) []RedundantOverride {
	var out []RedundantOverride
	for key, v := range s.Overrides.Sidebar {
		if v == RoleSidebarBase(perms, s.Role, key) {
			out = append(out, RedundantOverride{Kind: KindSidebar, Key: string(key), Value: v})
		}
	}
	for key, v := range s.Overrides.Rules {
		if v == RoleRuleBase(perms, s.Role, key) {
			out = append(out, RedundantOverride{Kind: KindRules, Key: string(key), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out
}
