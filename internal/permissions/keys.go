// Package permissions resolves effective sidebar visibility and rule grants
// from role defaults, global role overrides, per-user overrides and the
// configured root identities.
package permissions

import (
	"fmt"
	"strings"

	"github.com/donorhub/donorhub/internal/shared"
)

var (
	// ErrUnknownRole rejects a role outside the closed set.
	ErrUnknownRole = fmt.Errorf("permissions: unknown role: %w", shared.ErrValidation)
	// ErrUnknownKey rejects a sidebar or rule key outside the closed set.
	ErrUnknownKey = fmt.Errorf("permissions: unknown key: %w", shared.ErrValidation)
)

// Role is the stored user role.
type Role string

const (
	RoleUser       Role = "USER"
	RoleEditor     Role = "EDITOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

var roles = []Role{RoleUser, RoleEditor, RoleAdmin, RoleSuperAdmin}

// Roles lists every role in ascending privilege order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// Valid reports whether r belongs to the closed set.
func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalises raw and validates it.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// SidebarKey names a navigable UI surface.
type SidebarKey string

const (
	SidebarDashboard   SidebarKey = "dashboard"
	SidebarProfile     SidebarKey = "profile"
	SidebarDonors      SidebarKey = "donors"
	SidebarDonations   SidebarKey = "donations"
	SidebarDirectory   SidebarKey = "directory"
	SidebarSupport     SidebarKey = "support"
	SidebarFeedback    SidebarKey = "feedback"
	SidebarIDCard      SidebarKey = "idcard"
	SidebarNotices     SidebarKey = "notices"
	SidebarUsers       SidebarKey = "users"
	SidebarLogs        SidebarKey = "logs"
	SidebarArchive     SidebarKey = "archive"
	SidebarPermissions SidebarKey = "permissions"
)

var sidebarKeys = []SidebarKey{
	SidebarDashboard, SidebarProfile, SidebarDonors, SidebarDonations,
	SidebarDirectory, SidebarSupport, SidebarFeedback, SidebarIDCard,
	SidebarNotices, SidebarUsers, SidebarLogs, SidebarArchive, SidebarPermissions,
}

// SidebarKeys lists every sidebar key.
func SidebarKeys() []SidebarKey {
	out := make([]SidebarKey, len(sidebarKeys))
	copy(out, sidebarKeys)
	return out
}

// Valid reports whether k belongs to the closed set.
func (k SidebarKey) Valid() bool {
	for _, known := range sidebarKeys {
		if k == known {
			return true
		}
	}
	return false
}

// ParseSidebarKey validates raw.
func ParseSidebarKey(raw string) (SidebarKey, error) {
	key := SidebarKey(strings.TrimSpace(raw))
	if !key.Valid() {
		return "", fmt.Errorf("%w: sidebar %q", ErrUnknownKey, raw)
	}
	return key, nil
}

// RuleKey names a capability rule.
type RuleKey string

const (
	RuleEditUsers       RuleKey = "canEditUsers"
	RuleSuspendUsers    RuleKey = "canSuspendUsers"
	RuleManageDonations RuleKey = "canManageDonations"
	RuleApproveAccess   RuleKey = "canApproveAccess"
	RuleManageNotices   RuleKey = "canManageNotices"
	RuleViewLogs        RuleKey = "canViewLogs"
	RuleManageArchive   RuleKey = "canManageArchive"
	RulePurgeArchive    RuleKey = "canPurgeArchive"
	RuleEditPermissions RuleKey = "canEditPermissions"
)

var ruleKeys = []RuleKey{
	RuleEditUsers, RuleSuspendUsers, RuleManageDonations, RuleApproveAccess,
	RuleManageNotices, RuleViewLogs, RuleManageArchive, RulePurgeArchive, RuleEditPermissions,
}

// RuleKeys lists every rule key.
func RuleKeys() []RuleKey {
	out := make([]RuleKey, len(ruleKeys))
	copy(out, ruleKeys)
	return out
}

// Valid reports whether k belongs to the closed set.
func (k RuleKey) Valid() bool {
	for _, known := range ruleKeys {
		if k == known {
			return true
		}
	}
	return false
}

// ParseRuleKey validates raw.
func ParseRuleKey(raw string) (RuleKey, error) {
	key := RuleKey(strings.TrimSpace(raw))
	if !key.Valid() {
		return "", fmt.Errorf("%w: rule %q", ErrUnknownKey, raw)
	}
	return key, nil
}

// Kind selects the sidebar or rules map.
type Kind string

const (
	KindSidebar Kind = "sidebar"
	KindRules   Kind = "rules"
)

// ParseKind validates raw.
func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case KindSidebar, KindRules:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrUnknownKey, raw)
	}
}
