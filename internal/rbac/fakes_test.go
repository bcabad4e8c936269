package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	roles     map[int64]Role
	perms     map[int64]Permission
	grants    map[int64]map[int64]struct{}
	userRoles map[int64]int64

	directCalls map[int64]int
	failDirect  map[int64]error
	failParent  map[int64]error
	delay       time.Duration
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:      100,
		roles:       make(map[int64]Role),
		perms:       make(map[int64]Permission),
		grants:      make(map[int64]map[int64]struct{}),
		userRoles:   make(map[int64]int64),
		directCalls: make(map[int64]int),
		failDirect:  make(map[int64]error),
		failParent:  make(map[int64]error),
	}
}

func (m *memRepo) addRole(id int64, name string, parent *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[id] = Role{ID: id, Name: name, ParentID: parent}
}

func (m *memRepo) addPermission(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[id] = Permission{ID: id, Name: name}
}

func (m *memRepo) grant(roleID int64, permIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[roleID] == nil {
		m.grants[roleID] = make(map[int64]struct{})
	}
	for _, id := range permIDs {
		m.grants[roleID][id] = struct{}{}
	}
}

func (m *memRepo) calls(roleID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directCalls[roleID]
}

func ptr(v int64) *int64 { return &v }

func (m *memRepo) DirectPermissionNames(_ context.Context, roleID int64) ([]string, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directCalls[roleID]++
	if err := m.failDirect[roleID]; err != nil {
		return nil, err
	}
	var names []string
	for id := range m.grants[roleID] {
		names = append(names, m.perms[id].Name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memRepo) RoleParent(_ context.Context, roleID int64) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failParent[roleID]; err != nil {
		return nil, err
	}
	role, ok := m.roles[roleID]
	if !ok {
		return nil, ErrNotFound
	}
	if role.ParentID == nil {
		return nil, nil
	}
	return ptr(*role.ParentID), nil
}

func (m *memRepo) WithTx(_ context.Context, fn func(Repository) error) error {
	return fn(m)
}

func (m *memRepo) GetRole(_ context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memRepo) ListRoles(context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) ListPermissions(context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) RoleIDForUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.userRoles[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (m *memRepo) RoleIDByName(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if strings.EqualFold(r.Name, name) {
			return r.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *memRepo) CreateRole(_ context.Context, name, description string, parentID *int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	role := Role{ID: m.nextID, Name: name, Description: description, ParentID: parentID}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) UpdateRoleParent(_ context.Context, roleID int64, parentID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	role.ParentID = parentID
	m.roles[roleID] = role
	return nil
}

func (m *memRepo) DeleteRole(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	delete(m.grants, id)
	return nil
}

func (m *memRepo) RolePermissionIDs(_ context.Context, roleID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.grants[roleID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memRepo) AttachPermission(_ context.Context, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[a.PermissionID]; !ok {
		return errors.New("foreign key violation")
	}
	if m.grants[a.RoleID] == nil {
		m.grants[a.RoleID] = make(map[int64]struct{})
	}
	m.grants[a.RoleID][a.PermissionID] = struct{}{}
	return nil
}

func (m *memRepo) DetachPermission(_ context.Context, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[a.RoleID], a.PermissionID)
	return nil
}

func (m *memRepo) UpsertPermission(_ context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.perms {
		if p.Name == perm.Name {
			perm.ID = id
			m.perms[id] = perm
			return perm, nil
		}
	}
	m.nextID++
	perm.ID = m.nextID
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memRepo) AssignUserRole(_ context.Context, ur UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRoles[ur.UserID] = ur.RoleID
	return nil
}

var _ Repository = (*memRepo)(nil)

type countingObserver struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) CacheHit(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[kind]++
}

func (o *countingObserver) CacheMiss(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses[kind]++
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
	err   error
}

func (n *countingNotifier) Publish(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return n.err
}

// lmsFixture seeds Teacher(1) <- ModuleLeader(2) and Admin(3) <- RoleManager(4).
func lmsFixture() *memRepo {
	repo := newMemRepo()
	repo.addRole(1, "Teacher", nil)
	repo.addRole(2, "ModuleLeader", ptr(1))
	repo.addRole(3, "Admin", nil)
	repo.addRole(4, "RoleManager", ptr(3))
	repo.addPermission(10, "view_classes")
	repo.addPermission(11, "access_teacher_subjects")
	repo.addPermission(12, "manage_users")
	repo.addPermission(13, "manage_roles")
	repo.grant(1, 10)
	repo.grant(2, 11)
	repo.grant(3, 12, 13)
	repo.grant(4, 13)
	return repo
}
