package permissions

import (
	"fmt"

	"github.com/donorhub/donorhub/internal/docstore"
)

// RolePermissionSet holds the sidebar visibility and rule grants of one role.
type RolePermissionSet struct {
	Sidebar map[SidebarKey]bool `json:"sidebar"`
	Rules   map[RuleKey]bool    `json:"rules"`
}

// Clone deep-copies the set.
func (s RolePermissionSet) Clone() RolePermissionSet {
	return RolePermissionSet{Sidebar: cloneMap(s.Sidebar), Rules: cloneMap(s.Rules)}
}

// AppPermissions maps roles to their permission sets. It is persisted as one
// global document.
type AppPermissions map[Role]RolePermissionSet

// Clone deep-copies every role entry.
func (p AppPermissions) Clone() AppPermissions {
	if p == nil {
		return nil
	}
	out := make(AppPermissions, len(p))
	for role, set := range p {
		out[role] = set.Clone()
	}
	return out
}

// Sanitize drops unknown roles and keys.
func (p AppPermissions) Sanitize() AppPermissions {
	out := make(AppPermissions, len(p))
	for role, set := range p {
		if !role.Valid() {
			continue
		}
		out[role] = RolePermissionSet{
			Sidebar: filterKeys(set.Sidebar, SidebarKey.Valid),
			Rules:   filterKeys(set.Rules, RuleKey.Valid),
		}
	}
	return out
}

// Document renders p in its persisted shape.
func (p AppPermissions) Document() (docstore.Document, error) {
	doc, err := docstore.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("permissions: encode: %w", err)
	}
	return doc, nil
}

// DecodeAppPermissions reads a persisted AppPermissions document.
func DecodeAppPermissions(doc docstore.Document) (AppPermissions, error) {
	var perms AppPermissions
	if err := docstore.Decode(doc, &perms); err != nil {
		return nil, fmt.Errorf("permissions: decode: %w", err)
	}
	return perms.Sanitize(), nil
}

// Overrides are sparse per-user values. A missing key inherits the role value.
type Overrides struct {
	Sidebar map[SidebarKey]bool `json:"sidebar,omitempty"`
	Rules   map[RuleKey]bool    `json:"rules,omitempty"`
}

// Clone deep-copies the overrides.
func (o Overrides) Clone() Overrides {
	return Overrides{Sidebar: cloneMap(o.Sidebar), Rules: cloneMap(o.Rules)}
}

// IsEmpty reports whether no key is overridden.
func (o Overrides) IsEmpty() bool {
	return len(o.Sidebar) == 0 && len(o.Rules) == 0
}

// Sanitize drops unknown keys.
func (o Overrides) Sanitize() Overrides {
	return Overrides{
		Sidebar: filterKeys(o.Sidebar, SidebarKey.Valid),
		Rules:   filterKeys(o.Rules, RuleKey.Valid),
	}
}

// Subject is everything the resolver needs to know about a user.
type Subject struct {
	ID        string
	Role      Role
	Email     string
	Suspended bool
	Overrides Overrides
}

func cloneMap[K comparable](in map[K]bool) map[K]bool {
	if in == nil {
		return nil
	}
	out := make(map[K]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func filterKeys[K comparable](in map[K]bool, valid func(K) bool) map[K]bool {
	if len(in) == 0 {
		return nil
	}
	out := make(map[K]bool, len(in))
	for k, v := range in {
		if valid(k) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
