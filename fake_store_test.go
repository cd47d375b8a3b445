package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cbelmas/authcore/rbac"
)

// fakeStore is an in-memory Store for engine tests. It honors the same
// error contracts the sqlite implementation does.
type fakeStore struct {
	mu sync.Mutex

	nextUserID  int64
	nextTokenID int64
	users       map[int64]*User
	backupCodes map[int64]map[[32]byte]bool
	tokens      map[string]*RefreshToken
	attempts    []LoginAttempt

	roles      map[int64]*rbac.Role
	perms      map[int64]*rbac.Permission
	rolePerms  map[int64]map[int64]bool
	nextRoleID int64
	nextPermID int64
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		users:       make(map[int64]*User),
		backupCodes: make(map[int64]map[[32]byte]bool),
		tokens:      make(map[string]*RefreshToken),
		roles:       make(map[int64]*rbac.Role),
		perms:       make(map[int64]*rbac.Permission),
		rolePerms:   make(map[int64]map[int64]bool),
	}
	s.addRole("admin", true)
	s.addRole("user", true)
	return s
}

func (s *fakeStore) addRole(name string, builtIn bool) *rbac.Role {
	s.nextRoleID++
	r := &rbac.Role{ID: s.nextRoleID, Name: name, BuiltIn: builtIn}
	s.roles[r.ID] = r
	s.rolePerms[r.ID] = make(map[int64]bool)
	return r
}

func (s *fakeStore) addPermission(name, resource, action string) *rbac.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPermID++
	p := &rbac.Permission{ID: s.nextPermID, Name: name, Resource: resource, Action: action}
	s.perms[p.ID] = p
	return p
}

func copyUser(u *User) *User {
	out := *u
	return &out
}

// --- UserStore ---

func (s *fakeStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	s.nextUserID++
	u.ID = s.nextUserID
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *fakeStore) UserByID(_ context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *fakeStore) userWhere(match func(*User) bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) UserByEmail(_ context.Context, email string) (*User, error) {
	return s.userWhere(func(u *User) bool { return u.Email == email })
}

func (s *fakeStore) UserByExternalID(_ context.Context, externalID string) (*User, error) {
	if externalID == "" {
		return nil, ErrUserNotFound
	}
	return s.userWhere(func(u *User) bool { return u.ExternalID == externalID })
}

func (s *fakeStore) UserByVerificationToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return s.userWhere(func(u *User) bool { return u.VerificationToken == token })
}

func (s *fakeStore) UserByResetToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return s.userWhere(func(u *User) bool { return u.ResetToken == token })
}

func (s *fakeStore) UpdateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *fakeStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastLoginAt = at
	}
	return nil
}

func (s *fakeStore) ReplaceBackupCodes(_ context.Context, userID int64, hashes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	s.backupCodes[userID] = set
	return nil
}

func (s *fakeStore) ConsumeBackupCode(_ context.Context, userID int64, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.backupCodes[userID]
	if !set[hash] {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

// --- RefreshTokenStore ---

func (s *fakeStore) CreateRefreshToken(_ context.Context, t *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTokenID++
	t.ID = s.nextTokenID
	cp := *t
	s.tokens[t.Token] = &cp
	return nil
}

func (s *fakeStore) ConsumeRefreshToken(_ context.Context, token string, now time.Time) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[token]
	if !ok {
		return nil, ErrRefreshInvalid
	}
	if row.Revoked {
		return nil, ErrRefreshReuse
	}
	if !row.ExpiresAt.After(now) {
		return nil, ErrRefreshInvalid
	}
	row.Revoked = true
	cp := *row
	return &cp, nil
}

func (s *fakeStore) RevokeRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[token]
	if !ok {
		return ErrRefreshInvalid
	}
	row.Revoked = true
	return nil
}

func (s *fakeStore) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.tokens {
		if row.UserID == userID && !row.Revoked {
			row.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteDeadTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, row := range s.tokens {
		if !row.ExpiresAt.After(cutoff) {
			delete(s.tokens, token)
			n++
		}
	}
	return n, nil
}

// --- LoginAttemptStore ---

func (s *fakeStore) RecordLoginAttempt(_ context.Context, a *LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *fakeStore) CountFailedByEmail(_ context.Context, email string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.Email == email && !a.Success && !a.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountFailedByOrigin(_ context.Context, origin string, since time.Time) (int, error) {
	if origin == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.Origin == origin && !a.Success && !a.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteAttemptsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.attempts[:0]
	var n int64
	for _, a := range s.attempts {
		if a.At.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return n, nil
}

// --- rbac.Store ---

func (s *fakeStore) RoleByID(_ context.Context, id int64) (*rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, rbac.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) RoleByName(_ context.Context, name string) (*rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, rbac.ErrRoleNotFound
}

func (s *fakeStore) PermissionByName(_ context.Context, name string) (*rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, rbac.ErrPermissionNotFound
}

func (s *fakeStore) PermissionsForRole(_ context.Context, roleID int64) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.Permission
	for permID := range s.rolePerms[roleID] {
		out = append(out, *s.perms[permID])
	}
	return out, nil
}

func (s *fakeStore) RoleIDForUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return u.RoleID, nil
}

func (s *fakeStore) AssignPermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rolePerms[roleID]
	if !ok {
		set = make(map[int64]bool)
		s.rolePerms[roleID] = set
	}
	if set[permissionID] {
		return rbac.ErrAlreadyAssigned
	}
	set[permissionID] = true
	return nil
}

func (s *fakeStore) RemovePermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.rolePerms[roleID]
	if !set[permissionID] {
		return rbac.ErrNotAssigned
	}
	delete(set, permissionID)
	return nil
}

func (s *fakeStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.backupCodes, id)
	return nil
}

func (s *fakeStore) CreateRole(_ context.Context, r *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return rbac.ErrRoleExists
		}
	}
	s.nextRoleID++
	r.ID = s.nextRoleID
	r.BuiltIn = false
	cp := *r
	s.roles[r.ID] = &cp
	s.rolePerms[r.ID] = make(map[int64]bool)
	return nil
}

func (s *fakeStore) UpdateRole(_ context.Context, r *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.roles[r.ID]
	if !ok {
		return rbac.ErrRoleNotFound
	}
	if current.BuiltIn && current.Name != r.Name {
		return rbac.ErrRoleBuiltIn
	}
	for _, existing := range s.roles {
		if existing.ID != r.ID && existing.Name == r.Name {
			return rbac.ErrRoleExists
		}
	}
	current.Name = r.Name
	current.Description = r.Description
	r.BuiltIn = current.BuiltIn
	return nil
}

func (s *fakeStore) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return rbac.ErrRoleNotFound
	}
	if role.BuiltIn {
		return rbac.ErrRoleBuiltIn
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	for _, u := range s.users {
		if u.RoleID == id {
			u.RoleID = 0
			u.RoleName = ""
		}
	}
	return nil
}

func (s *fakeStore) CreatePermission(_ context.Context, p *rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.perms {
		if existing.Name == p.Name {
			return rbac.ErrPermissionExists
		}
	}
	s.nextPermID++
	p.ID = s.nextPermID
	cp := *p
	s.perms[p.ID] = &cp
	return nil
}

func (s *fakeStore) DeletePermission(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return rbac.ErrPermissionNotFound
	}
	delete(s.perms, id)
	for _, set := range s.rolePerms {
		delete(set, id)
	}
	return nil
}

var _ Store = (*fakeStore)(nil)

// --- engine test harness ---

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret")
	// Cheap hash parameters would be nice here, but the hasher enforces
	// floors; tests live with the defaults.
	return cfg
}

// fixtureStart is the frozen wall time engine tests begin at.
var fixtureStart = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineFixture struct {
	engine *Engine
	store  *fakeStore
	redis  *miniredis.Miniredis
	clock  *testClock
	mailer *captureMailer
}

// captureMailer records outbound mail for assertions.
type captureMailer struct {
	mu                 sync.Mutex
	verificationTokens map[string]string
	resetTokens        map[string]string
	twoFactorCodes     map[string]string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{
		verificationTokens: make(map[string]string),
		resetTokens:        make(map[string]string),
		twoFactorCodes:     make(map[string]string),
	}
}

func (m *captureMailer) SendVerification(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationTokens[email] = token
	return nil
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[email] = token
	return nil
}

func (m *captureMailer) SendTwoFactorCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.twoFactorCodes[email] = code
	return nil
}

func (m *captureMailer) verificationToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verificationTokens[email]
}

func (m *captureMailer) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetTokens[email]
}

func (m *captureMailer) twoFactorCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.twoFactorCodes[email]
}

func newTestEngine(t *testing.T, cfg Config) *engineFixture {
	t.Helper()

	mr, rdb := newTestRedis(t)
	fs := newFakeStore()
	clock := newTestClock(fixtureStart)
	mailer := newCaptureMailer()

	engine, err := New().
		WithConfig(cfg).
		WithStore(fs).
		WithRedis(rdb).
		WithMailer(mailer).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, store: fs, redis: mr, clock: clock, mailer: mailer}
}

func (f *engineFixture) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: password,
		Origin:   "198.51.100.1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}
