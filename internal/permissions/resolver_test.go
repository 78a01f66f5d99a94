package permissions

import "testing"

func TestResolverSuperAdminBypass(t *testing.T) {
	resolver := NewResolver(NewRootIdentities(" Root@DonorHub.org "))
	deny := AppPermissions{RoleUser: {Sidebar: map[SidebarKey]bool{}, Rules: map[RuleKey]bool{}}}
	for _, key := range SidebarKeys() {
		deny[RoleUser].Sidebar[key] = false
	}

	tests := []struct {
		name    string
		subject Subject
	}{
		{name: "stored role", subject: Subject{Role: RoleSuperAdmin}},
		{name: "root email", subject: Subject{Role: RoleUser, Email: "root@donorhub.org"}},
		{name: "root email with override false", subject: Subject{
			Role:      RoleUser,
			Email:     "ROOT@donorhub.org ",
			Overrides: Overrides{Sidebar: map[SidebarKey]bool{SidebarLogs: false}, Rules: map[RuleKey]bool{RulePurgeArchive: false}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !resolver.IsSuperAdmin(tt.subject) {
				t.Fatalf("expected superadmin")
			}
			set := resolver.EffectiveSet(deny, tt.subject)
			for key, v := range set.Sidebar {
				if !v {
					t.Fatalf("sidebar %s resolved false", key)
				}
			}
			for key, v := range set.Rules {
				if !v {
					t.Fatalf("rule %s resolved false", key)
				}
			}
		})
	}
}

func TestResolverOverrideWinsOverRole(t *testing.T) {
	resolver := NewResolver(NewRootIdentities())
	perms := DefaultAppPermissions()
	subject := Subject{Role: RoleAdmin, Overrides: Overrides{
		Sidebar: map[SidebarKey]bool{SidebarLogs: false},
		Rules:   map[RuleKey]bool{RulePurgeArchive: true},
	}}

	if resolver.Sidebar(perms, subject, SidebarLogs) {
		t.Fatalf("override false should hide logs")
	}
	if !resolver.Rule(perms, subject, RulePurgeArchive) {
		t.Fatalf("override true should grant purge")
	}
	if !resolver.Sidebar(perms, subject, SidebarUsers) {
		t.Fatalf("absent override should inherit role value")
	}
}

func TestResolverFallsBackToMinimalSet(t *testing.T) {
	resolver := NewResolver(NewRootIdentities())
	partial := AppPermissions{RoleEditor: {Sidebar: map[SidebarKey]bool{SidebarDonors: true}}}

	tests := []struct {
		name    string
		perms   AppPermissions
		subject Subject
		key     SidebarKey
		want    bool
	}{
		{name: "nil config dashboard", perms: nil, subject: Subject{Role: RoleUser}, key: SidebarDashboard, want: true},
		{name: "nil config donors", perms: nil, subject: Subject{Role: RoleUser}, key: SidebarDonors, want: false},
		{name: "missing role notices", perms: partial, subject: Subject{Role: RoleAdmin}, key: SidebarNotices, want: true},
		{name: "missing key profile", perms: partial, subject: Subject{Role: RoleEditor}, key: SidebarProfile, want: true},
		{name: "missing key users", perms: partial, subject: Subject{Role: RoleEditor}, key: SidebarUsers, want: false},
		{name: "present key", perms: partial, subject: Subject{Role: RoleEditor}, key: SidebarDonors, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolver.Sidebar(tt.perms, tt.subject, tt.key); got != tt.want {
				t.Fatalf("Sidebar(%s) = %t, want %t", tt.key, got, tt.want)
			}
		})
	}
	for _, key := range RuleKeys() {
		if resolver.Rule(nil, Subject{Role: RoleAdmin}, key) {
			t.Fatalf("rule %s should fall back to false", key)
		}
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	if role, err := ParseRole(" admin "); err != nil || role != RoleAdmin {
		t.Fatalf("ParseRole(admin) = %q, %v", role, err)
	}
	if _, err := ParseRole("OWNER"); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if _, err := ParseSidebarKey("reports"); err == nil {
		t.Fatalf("expected unknown sidebar key error")
	}
	if _, err := ParseRuleKey("canDoAnything"); err == nil {
		t.Fatalf("expected unknown rule key error")
	}
}

func TestDecodeAppPermissionsDropsUnknownKeys(t *testing.T) {
	doc, err := (AppPermissions{RoleUser: {Sidebar: map[SidebarKey]bool{SidebarDonors: true}}}).Document()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc["OWNER"] = map[string]any{"sidebar": map[string]any{"dashboard": true}}
	doc["USER"].(map[string]any)["sidebar"].(map[string]any)["reports"] = true

	perms, err := DecodeAppPermissions(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := perms[Role("OWNER")]; ok {
		t.Fatalf("unknown role kept")
	}
	if _, ok := perms[RoleUser].Sidebar[SidebarKey("reports")]; ok {
		t.Fatalf("unknown key kept")
	}
	if !perms[RoleUser].Sidebar[SidebarDonors] {
		t.Fatalf("known key lost")
	}
}

func TestRedundantOverrides(t *testing.T) {
	perms := DefaultAppPermissions()
	subject := Subject{Role: RoleUser, Overrides: Overrides{
		Sidebar: map[SidebarKey]bool{SidebarDonors: true, SidebarDashboard: true},
		Rules:   map[RuleKey]bool{RuleViewLogs: false},
	}}
	got := RedundantOverrides(perms, subject)
	if len(got) != 2 {
		t.Fatalf("expected 2 redundant overrides, got %+v", got)
	}
	if got[0].Kind != KindRules || got[0].Key != string(RuleViewLogs) {
		t.Fatalf("unexpected first entry %+v", got[0])
	}
	if got[1].Kind != KindSidebar || got[1].Key != string(SidebarDashboard) {
		t.Fatalf("unexpected second entry %+v", got[1])
	}
}
