package users

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
)

type countingRepo struct {
	*Repository
	updates int
}

func (c *countingRepo) Update(ctx context.Context, id string, fields docstore.Document) error {
	c.updates++
	return c.Repository.Update(ctx, id, fields)
}

type stubGuard struct {
	allowed map[permissions.RuleKey]bool
	root    bool
}

func (g stubGuard) Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error {
	if g.root || g.allowed[rule] {
		return nil
	}
	return fmt.Errorf("%s: %w", rule, shared.ErrPermissionDenied)
}

func (g stubGuard) IsRoot(context.Context, shared.Actor) (bool, error) { return g.root, nil }

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) Log(ctx context.Context, action string, actor shared.Actor, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(guard Authorizer) (*Service, *countingRepo, *recordingAudit) {
	clock := shared.FixedClock{At: testNow}
	repo := &countingRepo{Repository: NewRepository(docstore.NewMemoryStore(), clock)}
	audit := &recordingAudit{}
	svc := NewService(repo, permissions.NewRootIdentities("root@donorhub.org"), guard, audit, clock, nil)
	return svc, repo, audit
}

func TestEnsureProfileCreatesOnce(t *testing.T) {
	svc, repo, audit := newTestService(stubGuard{})
	ctx := context.Background()
	actor := shared.Actor{ID: "u1", Name: "Ayu", Email: "ayu@example.org"}

	u, err := svc.EnsureProfile(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleUser, u.Role)
	assert.Equal(t, testNow, u.CreatedAt)

	again, err := svc.EnsureProfile(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, []string{ActionRegister}, audit.actions)
	assert.Zero(t, repo.updates)

	_, err = svc.EnsureProfile(ctx, shared.Actor{})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestProfileCorrectsRootRoleOnce(t *testing.T) {
	svc, repo, _ := newTestService(stubGuard{})
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, User{ID: "r1", Role: permissions.RoleAdmin, Email: " ROOT@donorhub.org"}))

	u, err := svc.Profile(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleSuperAdmin, u.Role)
	assert.Equal(t, 1, repo.updates)

	stored, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleSuperAdmin, stored.Role)

	_, err = svc.Profile(ctx, "r1")
	require.NoError(t, err)
	_, err = svc.EnsureProfile(ctx, shared.Actor{ID: "r1", Email: "root@donorhub.org"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.updates, "correct role must not be rewritten")
}

func TestEnsureProfileRootIdentity(t *testing.T) {
	svc, _, _ := newTestService(stubGuard{})
	u, err := svc.EnsureProfile(context.Background(), shared.Actor{ID: "r2", Email: "Root@DonorHub.org"})
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleSuperAdmin, u.Role)
}

func TestSetSuspended(t *testing.T) {
	ctx := context.Background()
	svc, repo, audit := newTestService(stubGuard{allowed: map[permissions.RuleKey]bool{permissions.RuleSuspendUsers: true}})
	require.NoError(t, repo.Create(ctx, User{ID: "u1", Role: permissions.RoleUser, Email: "u1@example.org"}))
	require.NoError(t, repo.Create(ctx, User{ID: "r1", Role: permissions.RoleSuperAdmin, Email: "root@donorhub.org"}))
	admin := shared.Actor{ID: "admin-1", Name: "Admin"}

	require.NoError(t, svc.SetSuspended(ctx, admin, "u1", true))
	u, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.IsSuspended)
	assert.True(t, u.Subject().Suspended)
	assert.Equal(t, testNow, u.UpdatedAt)

	require.NoError(t, svc.SetSuspended(ctx, admin, "u1", false))
	assert.Equal(t, []string{ActionSuspend, ActionUnsuspend}, audit.actions)

	require.ErrorIs(t, svc.SetSuspended(ctx, admin, "r1", true), shared.ErrValidation)
	require.ErrorIs(t, svc.SetSuspended(ctx, admin, "ghost", true), shared.ErrNotFound)

	denied, _, _ := newTestService(stubGuard{})
	require.ErrorIs(t, denied.SetSuspended(ctx, admin, "u1", true), shared.ErrPermissionDenied)
}

func TestUpdateRole(t *testing.T) {
	ctx := context.Background()
	svc, repo, audit := newTestService(stubGuard{allowed: map[permissions.RuleKey]bool{permissions.RuleEditUsers: true}})
	require.NoError(t, repo.Create(ctx, User{ID: "u1", Role: permissions.RoleUser}))
	admin := shared.Actor{ID: "admin-1"}

	require.NoError(t, svc.UpdateRole(ctx, admin, "u1", permissions.RoleEditor))
	require.NoError(t, svc.UpdateRole(ctx, admin, "u1", permissions.RoleEditor))
	assert.Equal(t, []string{ActionRoleUpdate}, audit.actions)

	require.ErrorIs(t, svc.UpdateRole(ctx, admin, "u1", permissions.RoleSuperAdmin), shared.ErrPermissionDenied)
	require.ErrorIs(t, svc.UpdateRole(ctx, admin, "u1", permissions.Role("OWNER")), shared.ErrValidation)
}

func TestRepositorySaveOverrides(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(docstore.NewMemoryStore(), shared.FixedClock{At: testNow})
	require.NoError(t, repo.Create(ctx, User{ID: "u1", Role: permissions.RoleUser, HasIDCardAccess: true}))

	overrides := permissions.Overrides{Sidebar: map[permissions.SidebarKey]bool{permissions.SidebarDonors: true}}
	require.NoError(t, repo.SaveOverrides(ctx, "u1", overrides))
	subject, err := repo.GetSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, overrides.Sidebar, subject.Overrides.Sidebar)

	require.NoError(t, repo.SaveOverrides(ctx, "u1", permissions.Overrides{}))
	subject, err = repo.GetSubject(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, subject.Overrides.IsEmpty())

	u, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.HasIDCardAccess, "override save must not touch other fields")

	require.ErrorIs(t, repo.SaveOverrides(ctx, "ghost", overrides), shared.ErrNotFound)
}
