package permissions

// minimalSidebar is the fallback when a role entry or key is missing. Rules
// fall back to false.
var minimalSidebar = map[SidebarKey]bool{
	SidebarDashboard: true,
	SidebarProfile:   true,
	SidebarNotices:   true,
}

func minimalSidebarValue(key SidebarKey) bool {
	return minimalSidebar[key]
}

// MinimalSet returns the fallback permission set with every key populated.
func MinimalSet() RolePermissionSet {
	set := RolePermissionSet{
		Sidebar: make(map[SidebarKey]bool, len(sidebarKeys)),
		Rules:   make(map[RuleKey]bool, len(ruleKeys)),
	}
	for _, key := range sidebarKeys {
		set.Sidebar[key] = minimalSidebarValue(key)
	}
	for _, key := range ruleKeys {
		set.Rules[key] = false
	}
	return set
}

// DefaultAppPermissions returns the built-in configuration written when no
// global document exists.
func DefaultAppPermissions() AppPermissions {
	user := MinimalSet()
	for _, key := range []SidebarKey{SidebarDonations, SidebarDirectory, SidebarSupport, SidebarFeedback, SidebarIDCard} {
		user.Sidebar[key] = true
	}

	editor := user.Clone()
	editor.Sidebar[SidebarDonors] = true
	editor.Rules[RuleManageDonations] = true
	editor.Rules[RuleManageNotices] = true

	admin := editor.Clone()
	for _, key := range []SidebarKey{SidebarUsers, SidebarLogs, SidebarArchive, SidebarPermissions} {
		admin.Sidebar[key] = true
	}
	for _, key := range []RuleKey{RuleEditUsers, RuleSuspendUsers, RuleApproveAccess, RuleViewLogs, RuleManageArchive, RuleEditPermissions} {
		admin.Rules[key] = true
	}

	super := MinimalSet()
	for key := range super.Sidebar {
		super.Sidebar[key] = true
	}
	for key := range super.Rules {
		super.Rules[key] = true
	}

	return AppPermissions{
		RoleUser:       user,
		RoleEditor:     editor,
		RoleAdmin:      admin,
		RoleSuperAdmin: super,
	}
}
