package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

type countingWarmer struct {
	count int
	err   error
}

func (w *countingWarmer) EnqueueWarmPermissions(context.Context) error {
	w.count++
	return w.err
}

func newTestService(repo *memRepo) (*Service, *countingWarmer) {
	warmer := &countingWarmer{}
	svc := NewService(repo, NewStore(repo), nil).WithWarmer(warmer)
	return svc, warmer
}

func TestResolveRoleIDPrefersUserRoles(t *testing.T) {
	repo := lmsFixture()
	repo.userRoles[42] = 2
	svc, _ := newTestService(repo)

	id, err := svc.ResolveRoleID(context.Background(), 42, "Teacher")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestResolveRoleIDFallsBackToName(t *testing.T) {
	svc, _ := newTestService(lmsFixture())

	id, err := svc.ResolveRoleID(context.Background(), 42, "moduleleader")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, err = svc.ResolveRoleID(context.Background(), 42, "Janitor")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ResolveRoleID(context.Background(), 0, "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRoleValidates(t *testing.T) {
	svc, warmer := newTestService(lmsFixture())
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "   ", "", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.CreateRole(ctx, "HeadOfYear", "", ptr(999))
	assert.ErrorIs(t, err, ErrNotFound)

	role, err := svc.CreateRole(ctx, " HeadOfYear ", " pastoral lead ", ptr(1))
	require.NoError(t, err)
	assert.Equal(t, "HeadOfYear", role.Name)
	assert.Equal(t, "pastoral lead", role.Description)
	assert.Equal(t, 1, warmer.count)
}

func TestSetParentRejectsCycles(t *testing.T) {
	repo := lmsFixture()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetParent(ctx, 1, ptr(2)), ErrCycle)
	assert.ErrorIs(t, svc.SetParent(ctx, 1, ptr(1)), ErrCycle)

	require.NoError(t, svc.SetParent(ctx, 3, ptr(1)))
	role, err := svc.GetRole(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, role.ParentID)
	assert.Equal(t, int64(1), *role.ParentID)

	require.NoError(t, svc.SetParent(ctx, 3, nil))
	role, _ = svc.GetRole(ctx, 3)
	assert.Nil(t, role.ParentID)
}

func TestSetParentInvalidatesInheritedCache(t *testing.T) {
	repo := lmsFixture()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	perms, err := svc.InheritedPermissions(ctx, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"manage_roles", "manage_users"}, perms)

	require.NoError(t, svc.SetParent(ctx, 4, ptr(1)))
	perms, err = svc.InheritedPermissions(ctx, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"manage_roles", "view_classes"}, perms)
}

func TestSetRolePermissionsDiffsAndClears(t *testing.T) {
	repo := lmsFixture()
	svc, warmer := newTestService(repo)
	ctx := context.Background()

	before, err := svc.DirectPermissions(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_roles", "manage_users"}, before)

	require.NoError(t, svc.SetRolePermissions(ctx, 3, []int64{13, 10}))
	after, err := svc.DirectPermissions(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_roles", "view_classes"}, after)
	assert.Equal(t, 1, warmer.count)

	err = svc.SetRolePermissions(ctx, 404, []int64{10})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, warmer.count, "failed write does not invalidate")
}

func TestEnsurePermissionUpserts(t *testing.T) {
	svc, _ := newTestService(lmsFixture())
	ctx := context.Background()

	perm, err := svc.EnsurePermission(ctx, "view_classes", "Browse classes", "teaching")
	require.NoError(t, err)
	assert.Equal(t, int64(10), perm.ID)
	assert.Equal(t, "teaching", perm.Category)

	_, err = svc.EnsurePermission(ctx, "", "", "")
	assert.Error(t, err)
}

func TestAssignRole(t *testing.T) {
	repo := lmsFixture()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 7, 2))
	id, err := svc.ResolveRoleID(ctx, 7, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	assert.ErrorIs(t, svc.AssignRole(ctx, 7, 404), ErrNotFound)
}

func TestDeleteRole(t *testing.T) {
	svc, _ := newTestService(lmsFixture())
	ctx := context.Background()

	require.NoError(t, svc.DeleteRole(ctx, 4))
	assert.ErrorIs(t, svc.DeleteRole(ctx, 4), ErrNotFound)
}

func TestWarmerFailureDoesNotFailMutation(t *testing.T) {
	repo := lmsFixture()
	svc, warmer := newTestService(repo)
	warmer.err = errors.New("queue down")

	_, err := svc.EnsurePermission(context.Background(), "view_grades", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, warmer.count)
}

type auditTrail struct {
	entries []shared.AuditLog
	err     error
}

func (a *auditTrail) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return a.err
}

func TestChangesAreAudited(t *testing.T) {
	trail := &auditTrail{}
	svc, _ := newTestService(lmsFixture())
	svc.WithAuditor(trail)

	sess := &shared.Session{}
	sess.SetUser("9")
	ctx := shared.ContextWithSession(context.Background(), sess)

	require.NoError(t, svc.AssignRole(ctx, 7, 2))
	assert.ErrorIs(t, svc.AssignRole(ctx, 7, 404), ErrNotFound)

	require.Len(t, trail.entries, 1, "failed writes are not audited")
	entry := trail.entries[0]
	assert.Equal(t, int64(9), entry.ActorID)
	assert.Equal(t, "assign_role", entry.Action)
	assert.Equal(t, "user", entry.Entity)
	assert.Equal(t, "7", entry.EntityID)
	assert.Equal(t, int64(2), entry.Meta["role_id"])

	trail.err = errors.New("audit table missing")
	require.NoError(t, svc.DeleteRole(ctx, 4))
	assert.Len(t, trail.entries, 2)
}
