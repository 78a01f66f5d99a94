package access

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorhub/donorhub/internal/audit"
	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
	"github.com/donorhub/donorhub/internal/users"
)

type allowRules map[permissions.RuleKey]bool

func (a allowRules) Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error {
	if a[rule] {
		return nil
	}
	return shared.ErrPermissionDenied
}

type recordingUsers struct {
	*users.Repository
	updates []docstore.Document
}

func (r *recordingUsers) Update(ctx context.Context, id string, fields docstore.Document) error {
	r.updates = append(r.updates, docstore.Clone(fields))
	return r.Repository.Update(ctx, id, fields)
}

type fixture struct {
	store   *docstore.MemoryStore
	users   *recordingUsers
	manager *Manager
	admin   shared.Actor
}

var fixtureNow = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, guard Authorizer) fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	clock := shared.FixedClock{At: fixtureNow}
	repo := &recordingUsers{Repository: users.NewRepository(store, clock)}
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := audit.NewLogger(audit.NewStoreSink(store), audit.LoggerOptions{Clock: clock, Logger: discard})
	return fixture{
		store:   store,
		users:   repo,
		manager: NewManager(repo, guard, logger, clock, discard),
		admin:   shared.Actor{ID: "admin-1", Name: "Nadia"},
	}
}

func (f fixture) auditEntries(t *testing.T) []audit.Entry {
	t.Helper()
	records, err := f.store.Query(context.Background(), audit.Collection)
	require.NoError(t, err)
	out := make([]audit.Entry, 0, len(records))
	for _, rec := range records {
		out = append(out, audit.EntryFromRecord(rec))
	}
	return out
}

func TestDecideDeniesIDCardScenario(t *testing.T) {
	f := newFixture(t, allowRules{permissions.RuleApproveAccess: true})
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, users.User{ID: "U9", Name: "Budi", Role: permissions.RoleUser, IDCardAccessRequested: true}))

	decision, err := f.manager.Decide(ctx, f.admin, "U9", CapabilityIDCard, false)
	require.NoError(t, err)
	assert.False(t, decision.Stale)
	assert.True(t, decision.Previous.Requested)

	u, err := f.users.Get(ctx, "U9")
	require.NoError(t, err)
	assert.False(t, u.HasIDCardAccess)
	assert.False(t, u.IDCardAccessRequested)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "IDCARD_ACCESS_UPDATE", entries[0].Action)
	assert.Equal(t, "admin-1", entries[0].UserID)
	assert.Equal(t, "Nadia", entries[0].UserName)
}

func TestDecideWritesBothFieldsInOneUpdate(t *testing.T) {
	f := newFixture(t, allowRules{permissions.RuleApproveAccess: true})
	ctx := context.Background()
	for _, c := range Capabilities() {
		id := "user-" + string(c)
		require.NoError(t, f.users.Create(ctx, users.User{ID: id, Role: permissions.RoleUser}))
		require.NoError(t, f.manager.Request(ctx, shared.Actor{ID: id}, id, c))

		f.users.updates = nil
		_, err := f.manager.Decide(ctx, f.admin, id, c, true)
		require.NoError(t, err)
		require.Len(t, f.users.updates, 1, "decide must issue exactly one update")
		assert.Equal(t, true, f.users.updates[0][c.AccessField()])
		assert.Equal(t, false, f.users.updates[0][c.RequestedField()])

		state := c.StateOf(mustGet(t, f, id))
		assert.True(t, state.Access)
		assert.False(t, state.Requested)
	}
}

func TestRequestIsIdempotent(t *testing.T) {
	f := newFixture(t, allowRules{})
	ctx := context.Background()
	user := shared.Actor{ID: "U1", Name: "Sari"}
	require.NoError(t, f.users.Create(ctx, users.User{ID: "U1", Role: permissions.RoleUser, HasSupportAccess: true}))

	require.NoError(t, f.manager.Request(ctx, user, "U1", CapabilitySupport))
	require.NoError(t, f.manager.Request(ctx, user, "U1", CapabilitySupport))

	state := CapabilitySupport.StateOf(mustGet(t, f, "U1"))
	assert.True(t, state.Requested)
	assert.True(t, state.Access, "request does not guard against standing access")
	require.NotNil(t, state.RequestedAt)
	assert.Equal(t, fixtureNow, *state.RequestedAt)
	assert.Len(t, f.users.updates, 1)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "SUPPORT_ACCESS_REQUEST", entries[0].Action)

	err := f.manager.Request(ctx, user, "U2", CapabilitySupport)
	require.ErrorIs(t, err, shared.ErrPermissionDenied, "requesting for another user needs approval rights")
}

func TestRevokeAndStaleDecisions(t *testing.T) {
	f := newFixture(t, allowRules{permissions.RuleApproveAccess: true})
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, users.User{ID: "U3", Role: permissions.RoleUser, HasDirectoryAccess: true}))

	decision, err := f.manager.Revoke(ctx, f.admin, "U3", CapabilityDirectory)
	require.NoError(t, err)
	assert.True(t, decision.Stale)
	assert.True(t, decision.Previous.Access)
	assert.False(t, CapabilityDirectory.StateOf(mustGet(t, f, "U3")).Access)

	require.NoError(t, f.manager.Request(ctx, shared.Actor{ID: "U3"}, "U3", CapabilityDirectory))
	first, err := f.manager.Decide(ctx, f.admin, "U3", CapabilityDirectory, true)
	require.NoError(t, err)
	second, err := f.manager.Decide(ctx, shared.Actor{ID: "admin-2", Name: "Rina"}, "U3", CapabilityDirectory, false)
	require.NoError(t, err)
	assert.False(t, first.Stale)
	assert.True(t, second.Stale, "the later decision saw no pending request")
	assert.False(t, CapabilityDirectory.StateOf(mustGet(t, f, "U3")).Access, "last write wins")

	var updates []audit.Entry
	for _, e := range f.auditEntries(t) {
		if e.Action == "DIRECTORY_ACCESS_UPDATE" {
			updates = append(updates, e)
		}
	}
	require.Len(t, updates, 3)
	var annotated int
	for _, e := range updates {
		if assert.NotEmpty(t, e.Details) && strings.Contains(e.Details, "(no pending request") {
			annotated++
		}
	}
	assert.Equal(t, 1, annotated)
}

func TestDecideRequiresApproval(t *testing.T) {
	f := newFixture(t, allowRules{})
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, users.User{ID: "U4", Role: permissions.RoleUser, FeedbackAccessRequested: true}))

	_, err := f.manager.Decide(ctx, f.admin, "U4", CapabilityFeedback, true)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.True(t, CapabilityFeedback.StateOf(mustGet(t, f, "U4")).Requested)

	approver := newFixture(t, allowRules{permissions.RuleApproveAccess: true})
	_, err = approver.manager.Decide(ctx, approver.admin, "ghost", CapabilityFeedback, true)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = approver.manager.Decide(ctx, approver.admin, "U4", Capability("vault"), true)
	require.ErrorIs(t, err, ErrUnknownCapability)
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability(" IDCard ")
	require.NoError(t, err)
	assert.Equal(t, CapabilityIDCard, c)
	assert.Equal(t, "hasIDCardAccess", c.AccessField())
	assert.Equal(t, "idCardAccessRequested", c.RequestedField())
	assert.Equal(t, "idCardAccessRequestedAt", c.RequestedAtField())
	_, err = ParseCapability("vault")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func mustGet(t *testing.T, f fixture, id string) users.User {
	t.Helper()
	u, err := f.users.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}
