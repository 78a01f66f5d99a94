package permissions

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorhub/donorhub/internal/shared"
)

type stubUsers struct {
	mu       sync.Mutex
	subjects map[string]Subject
	saves    int
}

func newStubUsers(subjects ...Subject) *stubUsers {
	s := &stubUsers{subjects: make(map[string]Subject)}
	for _, subject := range subjects {
		s.subjects[subject.ID] = subject
	}
	return s
}

func (s *stubUsers) GetSubject(ctx context.Context, userID string) (Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[userID]
	if !ok {
		return Subject{}, fmt.Errorf("user %s: %w", userID, shared.ErrNotFound)
	}
	subject.Overrides = subject.Overrides.Clone()
	return subject, nil
}

func (s *stubUsers) SaveOverrides(ctx context.Context, userID string, overrides Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject := s.subjects[userID]
	subject.Overrides = overrides.Clone()
	s.subjects[userID] = subject
	s.saves++
	return nil
}

type auditCall struct {
	action  string
	actorID string
	details string
}

type recordingAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (r *recordingAudit) Log(ctx context.Context, action string, actor shared.Actor, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auditCall{action: action, actorID: actor.ID, details: details})
}

func newTestService(users *stubUsers, store DocumentStore) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	config := newTestConfigStore(store)
	svc := NewService(NewResolver(NewRootIdentities("root@donorhub.org")), config, users, audit, nil)
	return svc, audit
}

var (
	rootActor  = shared.Actor{ID: "root", Name: "Root", Email: "Root@DonorHub.org"}
	adminActor = shared.Actor{ID: "admin-1", Name: "Admin"}
)

func TestServiceToggleUserOverrideScenario(t *testing.T) {
	users := newStubUsers(
		Subject{ID: "admin-1", Role: RoleAdmin},
		Subject{ID: "U123", Role: RoleUser},
	)
	svc, audit := newTestService(users, newFlakyStore())
	ctx := context.Background()

	overrides, err := svc.ToggleUserOverride(ctx, adminActor, "U123", KindSidebar, string(SidebarDonors))
	require.NoError(t, err)
	assert.Equal(t, map[SidebarKey]bool{SidebarDonors: true}, overrides.Sidebar)

	subject, err := users.GetSubject(ctx, "U123")
	require.NoError(t, err)
	assert.True(t, svc.EffectiveFor(ctx, subject).Sidebar[SidebarDonors])

	overrides, err = svc.ToggleUserOverride(ctx, adminActor, "U123", KindSidebar, string(SidebarDonors))
	require.NoError(t, err)
	assert.True(t, overrides.IsEmpty())

	subject, err = users.GetSubject(ctx, "U123")
	require.NoError(t, err)
	assert.False(t, svc.EffectiveFor(ctx, subject).Sidebar[SidebarDonors])

	require.Len(t, audit.calls, 2)
	assert.Equal(t, ActionPermissionOverrideUpdate, audit.calls[0].action)
	assert.Equal(t, "admin-1", audit.calls[0].actorID)
	assert.Contains(t, audit.calls[1].details, "role default")
}

func TestServiceToggleUserOverrideRequiresRule(t *testing.T) {
	users := newStubUsers(
		Subject{ID: "editor-1", Role: RoleEditor},
		Subject{ID: "admin-2", Role: RoleAdmin, Suspended: true},
		Subject{ID: "U1", Role: RoleUser},
	)
	svc, audit := newTestService(users, newFlakyStore())
	ctx := context.Background()

	_, err := svc.ToggleUserOverride(ctx, shared.Actor{ID: "editor-1"}, "U1", KindRules, string(RuleViewLogs))
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.ToggleUserOverride(ctx, shared.Actor{ID: "admin-2"}, "U1", KindRules, string(RuleViewLogs))
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.ToggleUserOverride(ctx, shared.Actor{}, "U1", KindRules, string(RuleViewLogs))
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	_, err = svc.ToggleUserOverride(ctx, rootActor, "missing", KindRules, string(RuleViewLogs))
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.ToggleUserOverride(ctx, rootActor, "U1", KindRules, "canFly")
	require.ErrorIs(t, err, ErrUnknownKey)

	assert.Empty(t, audit.calls)
	assert.Zero(t, users.saves)
}

func TestServiceUpdateRolePermission(t *testing.T) {
	users := newStubUsers(Subject{ID: "admin-1", Role: RoleAdmin})
	store := newFlakyStore()
	svc, audit := newTestService(users, store)
	ctx := context.Background()
	change := RoleChange{Role: RoleUser, Kind: KindSidebar, Key: string(SidebarDonors), Value: true}

	err := svc.UpdateRolePermission(ctx, adminActor, change)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.Len(t, svc.Pending(), 1)
	assert.Equal(t, ReasonDenied, svc.Pending()[0].Reason)
	assert.False(t, svc.Permissions(ctx)[RoleUser].Sidebar[SidebarDonors], "pending changes never apply")

	require.NoError(t, svc.UpdateRolePermission(ctx, rootActor, RoleChange{Role: RoleEditor, Kind: KindRules, Key: string(RuleViewLogs), Value: true}))
	assert.True(t, svc.Permissions(ctx)[RoleEditor].Rules[RuleViewLogs])
	require.Len(t, audit.calls, 1)
	assert.Equal(t, ActionPermissionsUpdate, audit.calls[0].action)

	_, err = svc.SyncPending(ctx, adminActor)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	n, err := svc.SyncPending(ctx, rootActor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, svc.Permissions(ctx)[RoleUser].Sidebar[SidebarDonors])

	err = svc.UpdateRolePermission(ctx, rootActor, RoleChange{Role: "GUEST", Kind: KindSidebar, Key: string(SidebarDonors)})
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestServiceUpdateRolePermissionStagesOnStoreFailure(t *testing.T) {
	store := newFlakyStore()
	svc, audit := newTestService(newStubUsers(), store)
	ctx := context.Background()

	store.failSet.Store(true)
	err := svc.UpdateRolePermission(ctx, rootActor, RoleChange{Role: RoleUser, Kind: KindRules, Key: string(RuleViewLogs), Value: true})
	require.ErrorIs(t, err, ErrStaged)
	require.Len(t, svc.Pending(), 1)
	assert.Equal(t, ReasonUnavailable, svc.Pending()[0].Reason)
	assert.Empty(t, audit.calls)

	store.failSet.Store(false)
	require.NoError(t, svc.UpdateRolePermission(ctx, rootActor, RoleChange{Role: RoleUser, Kind: KindRules, Key: string(RuleManageNotices), Value: true}))
	perms := svc.Permissions(ctx)
	assert.True(t, perms[RoleUser].Rules[RuleViewLogs])
	assert.True(t, perms[RoleUser].Rules[RuleManageNotices])
	assert.Empty(t, svc.Pending())
}

func TestServiceEffectiveForActorUnknownUser(t *testing.T) {
	svc, _ := newTestService(newStubUsers(), newFlakyStore())
	set, err := svc.EffectiveForActor(context.Background(), shared.Actor{ID: "new-user"})
	require.NoError(t, err)
	assert.True(t, set.Sidebar[SidebarDashboard])
	assert.False(t, set.Rules[RuleApproveAccess])

	set, err = svc.EffectiveForActor(context.Background(), rootActor)
	require.NoError(t, err)
	assert.True(t, set.Rules[RulePurgeArchive])
}
