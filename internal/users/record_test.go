package users

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
)

type mapStorage map[string]string

func (m mapStorage) Get(key string) string { return m[key] }
func (m mapStorage) Set(key, value string) { m[key] = value }
func (m mapStorage) Delete(key string) { delete(m, key) }

func TestRecordJSONShape(t *testing.T) {
	teacher := roles.Hierarchical("Teacher", nil)
	rec := Record{ID: 7, Role: roles.Hierarchical("ModuleLeader", &teacher), FullName: "Ada Lovelace"}
	st := mapStorage{}
	require.NoError(t, SaveRecord(st, rec))

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(st[RecordKey]), &raw))
	assert.EqualValues(t, 1, raw["schema_version"])
	assert.Equal(t, "Ada Lovelace", raw["fullName"])
	assert.Equal(t, map[string]any{"name": "ModuleLeader", "parent": map[string]any{"name": "Teacher"}}, raw["role"])
	assert.Nil(t, raw["permissions"])
	assert.Contains(t, raw, "isRoleManager")
}

func TestLoadRecordAcceptsStringRole(t *testing.T) {
	st := mapStorage{RecordKey: `{"schema_version":1,"id":3,"role":"Student","role_id":9,"permissions":["view_grades"]}`}
	rec, err := LoadRecord(st)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Student", roles.Name(rec.Role))
	assert.Equal(t, roles.KindSimple, rec.Role.Kind())
	require.NotNil(t, rec.RoleID)
	assert.Equal(t, int64(9), *rec.RoleID)
	assert.Equal(t, []string{"view_grades"}, rec.Permissions)
}

func TestLoadRecordWithoutVersionIsAccepted(t *testing.T) {
	st := mapStorage{RecordKey: `{"id":3,"role":"Teacher"}`}
	rec, err := LoadRecord(st)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.Permissions)
}

func TestLoadRecordNewerVersionIsAbsent(t *testing.T) {
	st := mapStorage{RecordKey: `{"schema_version":2,"id":3,"role":"Teacher"}`}
	rec, err := LoadRecord(st)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, Unauthenticated, State(st))
}

func TestLoadRecordCorrupt(t *testing.T) {
	st := mapStorage{RecordKey: `{not json`}
	_, err := LoadRecord(st)
	assert.Error(t, err)
}

func TestStateTransitions(t *testing.T) {
	st := mapStorage{}
	assert.Equal(t, Unauthenticated, State(st))

	st[pendingKey] = "1"
	assert.Equal(t, Authenticating, State(st))

	require.NoError(t, SaveRecord(st, Record{ID: 1, Role: roles.Simple("Teacher")}))
	assert.Equal(t, AuthenticatedNoPermissions, State(st))
	assert.NotContains(t, st, pendingKey)

	require.NoError(t, SaveRecord(st, Record{ID: 1, Role: roles.Simple("Teacher"), Permissions: []string{}}))
	assert.Equal(t, AuthenticatedSynced, State(st))

	ClearRecord(st)
	assert.Equal(t, Unauthenticated, State(st))
	assert.Equal(t, "unauthenticated", State(st).String())
}

func TestProfileRef(t *testing.T) {
	assert.True(t, Profile{}.Ref().IsZero())
	assert.Equal(t, roles.KindSimple, Profile{RoleName: "Student"}.Ref().Kind())

	ref := Profile{RoleName: "RoleManager", ParentRoleName: "Admin"}.Ref()
	assert.Equal(t, "Admin", roles.EffectiveName(ref))
	assert.Equal(t, "/admin/dashboard", roles.DashboardRoute(ref))
}
