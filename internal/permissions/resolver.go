package permissions

import (
	"sort"
	"strings"
)

// NormalizeEmail trims and lower-cases an email for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RootIdentities is the configured set of principals that always hold full
// rights regardless of stored role.
type RootIdentities struct {
	emails map[string]struct{}
}

// NewRootIdentities normalises emails into a set. Blank entries are ignored.
func NewRootIdentities(emails ...string) RootIdentities {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if normalized := NormalizeEmail(email); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return RootIdentities{emails: set}
}

// Contains reports whether email is a root identity.
func (r RootIdentities) Contains(email string) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return false
	}
	_, ok := r.emails[normalized]
	return ok
}

// Emails lists the normalised root identities.
func (r RootIdentities) Emails() []string {
	out := make([]string, 0, len(r.emails))
	for email := range r.emails {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// Resolver computes effective permissions.
type Resolver struct {
	roots RootIdentities
}

// NewResolver constructs a Resolver.
func NewResolver(roots RootIdentities) *Resolver {
	return &Resolver{roots: roots}
}

// Roots exposes the configured root identities.
func (r *Resolver) Roots() RootIdentities {
	return r.roots
}

// IsSuperAdmin reports whether s bypasses all gating, either by stored role
// or by a root identity email.
func (r *Resolver) IsSuperAdmin(s Subject) bool {
	return s.Role == RoleSuperAdmin || r.roots.Contains(s.Email)
}

// Sidebar resolves the visibility of key for s.
func (r *Resolver) Sidebar(perms AppPermissions, s Subject, key SidebarKey) bool {
	if r.IsSuperAdmin(s) {
		return true
	}
	if v, ok := s.Overrides.Sidebar[key]; ok {
		return v
	}
	return RoleSidebarBase(perms, s.Role, key)
}

// Rule resolves the grant of key for s.
func (r *Resolver) Rule(perms AppPermissions, s Subject, key RuleKey) bool {
	if r.IsSuperAdmin(s) {
		return true
	}
	if v, ok := s.Overrides.Rules[key]; ok {
		return v
	}
	return RoleRuleBase(perms, s.Role, key)
}

// EffectiveSet resolves every key for s.
func (r *Resolver) EffectiveSet(perms AppPermissions, s Subject) RolePermissionSet {
	set := RolePermissionSet{
		Sidebar: make(map[SidebarKey]bool, len(sidebarKeys)),
		Rules:   make(map[RuleKey]bool, len(ruleKeys)),
	}
	for _, key := range sidebarKeys {
		set.Sidebar[key] = r.Sidebar(perms, s, key)
	}
	for _, key := range ruleKeys {
		set.Rules[key] = r.Rule(perms, s, key)
	}
	return set
}

// RoleSidebarBase is the role-derived sidebar value before per-user
// overrides. Missing roles or keys fall back to the minimal set.
func RoleSidebarBase(perms AppPermissions, role Role, key SidebarKey) bool {
	if set, ok := perms[role]; ok {
		if v, ok := set.Sidebar[key]; ok {
			return v
		}
	}
	return minimalSidebarValue(key)
}

// RoleRuleBase is the role-derived rule value before per-user overrides.
func RoleRuleBase(perms AppPermissions, role Role, key RuleKey) bool {
	if set, ok := perms[role]; ok {
		if v, ok := set.Rules[key]; ok {
			return v
		}
	}
	return false
}

// RoleBase resolves the role-derived value of a key of either kind.
func RoleBase(perms AppPermissions, role Role, kind Kind, key string) (bool, error) {
	switch kind {
	case KindSidebar:
		k, err := ParseSidebarKey(key)
		if err != nil {
			return false, err
		}
		return RoleSidebarBase(perms, role, k), nil
	case KindRules:
		k, err := ParseRuleKey(key)
		if err != nil {
			return false, err
		}
		return RoleRuleBase(perms, role, k), nil
	default:
		return false, ErrUnknownKey
	}
}
