package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// fakeStore mirrors the repository's lockout bookkeeping in memory.
type fakeStore struct {
	byID       map[string]*User
	byEmail    map[string]*User
	adminSeeds int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]*User{}, byEmail: map[string]*User{}}
}

func (s *fakeStore) add(user User) *User {
	u := user
	s.byID[u.ID] = &u
	s.byEmail[u.Email] = &u
	return &u
}

func (s *fakeStore) GetByID(_ context.Context, id string) (User, error) {
	if u, ok := s.byID[id]; ok {
		return *u, nil
	}
	return User{}, ErrUserNotFound
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (User, error) {
	if u, ok := s.byEmail[email]; ok {
		return *u, nil
	}
	return User{}, ErrUserNotFound
}

func (s *fakeStore) Create(_ context.Context, user User) error {
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrEmailTaken
	}
	user.ID = "user-" + user.Email
	s.add(user)
	return nil
}

func (s *fakeStore) RecordFailedLogin(_ context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	u, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.FailedAttempts++
	if u.FailedAttempts >= maxAttempts {
		until := now.Add(lockFor)
		u.LockedUntil = &until
		u.FailedAttempts = 0
		return &until, nil
	}
	return nil, nil
}

func (s *fakeStore) ResetFailedLogins(_ context.Context, userID string) error {
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *fakeStore) UpsertAdmin(_ context.Context, email, passwordHash string) error {
	s.adminSeeds++
	if u, ok := s.byEmail[email]; ok {
		u.PasswordHash = passwordHash
		u.Role = RoleSuperAdmin
		return nil
	}
	s.add(User{
		ID:           "admin-1",
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleSuperAdmin,
		Permissions:  AllPermissions(),
		Status:       StatusActive,
	})
	return nil
}

func newTestService(store Store) *Service {
	service := NewService(store, testTokenManager(), bcrypt.MinCost)
	service.WithLockoutConfig(3, 15*time.Minute)
	return service
}

func seedUser(t *testing.T, store *fakeStore, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.add(User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleUser,
		Status:       StatusActive,
	})
}

func TestLogin_Success(t *testing.T) {
	store := newFakeStore()
	seedUser(t, store, "a@example.com", "correct-horse-battery")
	service := newTestService(store)

	tokens, err := service.Login(context.Background(), "A@Example.com ", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if tokens.TokenType != "Bearer" {
		t.Fatalf("expected Bearer, got %s", tokens.TokenType)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newFakeStore()
	seedUser(t, store, "a@example.com", "correct-horse-battery")
	service := newTestService(store)

	_, err := service.Login(context.Background(), "a@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if store.byEmail["a@example.com"].FailedAttempts != 1 {
		t.Fatalf("expected failed attempt recorded, got %d", store.byEmail["a@example.com"].FailedAttempts)
	}
}

func TestLogin_UnknownUserLooksLikeBadCredentials(t *testing.T) {
	service := newTestService(newFakeStore())

	_, err := service.Login(context.Background(), "nobody@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	store := newFakeStore()
	seedUser(t, store, "a@example.com", "correct-horse-battery")
	service := newTestService(store)

	for i := 0; i < 2; i++ {
		if _, err := service.Login(context.Background(), "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := service.Login(context.Background(), "a@example.com", "wrong")
	var locked ErrAccountLocked
	if !errors.As(err, &locked) {
		t.Fatalf("expected ErrAccountLocked on third failure, got %v", err)
	}
	if !locked.Until.After(time.Now().UTC()) {
		t.Fatalf("lock should extend into the future, got %v", locked.Until)
	}

	// Even the right password is rejected while the lock holds.
	_, err = service.Login(context.Background(), "a@example.com", "correct-horse-battery")
	if !errors.As(err, &locked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	store := newFakeStore()
	seedUser(t, store, "a@example.com", "correct-horse-battery")
	service := newTestService(store)

	for i := 0; i < 2; i++ {
		_, _ = service.Login(context.Background(), "a@example.com", "wrong")
	}
	if _, err := service.Login(context.Background(), "a@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("login after failures: %v", err)
	}
	if store.byEmail["a@example.com"].FailedAttempts != 0 {
		t.Fatal("expected counter reset on success")
	}

	// The slate is clean: two more failures still do not lock.
	for i := 0; i < 2; i++ {
		if _, err := service.Login(context.Background(), "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	store := newFakeStore()
	seedUser(t, store, "a@example.com", "correct-horse-battery")
	store.byEmail["a@example.com"].Status = StatusInactive
	service := newTestService(store)

	_, err := service.Login(context.Background(), "a@example.com", "correct-horse-battery")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestRefresh_RechecksAccountState(t *testing.T) {
	store := newFakeStore()
	seedUser(t, store, "a@example.com", "correct-horse-battery")
	service := newTestService(store)
	userID := store.byEmail["a@example.com"].ID

	if _, err := service.Refresh(context.Background(), userID); err != nil {
		t.Fatalf("refresh active user: %v", err)
	}

	store.byEmail["a@example.com"].Status = StatusSuspended
	if _, err := service.Refresh(context.Background(), userID); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	store.byEmail["a@example.com"].Status = StatusActive
	until := time.Now().UTC().Add(10 * time.Minute)
	store.byEmail["a@example.com"].LockedUntil = &until
	var locked ErrAccountLocked
	if _, err := service.Refresh(context.Background(), userID); !errors.As(err, &locked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	store := newFakeStore()
	service := newTestService(store)

	if err := service.BootstrapAdmin(context.Background(), "", ""); err != nil {
		t.Fatalf("empty credentials should skip bootstrap: %v", err)
	}
	if store.adminSeeds != 0 {
		t.Fatal("expected no seed without credentials")
	}

	if err := service.BootstrapAdmin(context.Background(), "admin@example.com", ""); err == nil {
		t.Fatal("expected error for partial credentials")
	}

	if err := service.BootstrapAdmin(context.Background(), "Admin@Example.com", "root-password"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	admin, err := store.GetByEmail(context.Background(), "admin@example.com")
	if err != nil {
		t.Fatalf("expected seeded admin: %v", err)
	}
	if admin.Role != RoleSuperAdmin {
		t.Fatalf("expected super_admin role, got %s", admin.Role)
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("root-password")) != nil {
		t.Fatal("stored hash should match the password")
	}
}

func TestRegister_DefaultsToPlainUser(t *testing.T) {
	store := newFakeStore()
	service := newTestService(store)

	tokens, err := service.Register(context.Background(), RegisterInput{
		Email:    "New@Example.com",
		Name:     "New User",
		Password: "a-long-enough-password",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Fatal("expected access token")
	}

	created, err := store.GetByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("expected created user: %v", err)
	}
	if created.Role != RoleUser {
		t.Fatalf("expected user role, got %s", created.Role)
	}
	if len(created.Permissions) != 0 {
		t.Fatalf("expected no permissions, got %v", created.Permissions)
	}

	if _, err := service.Register(context.Background(), RegisterInput{
		Email:    "new@example.com",
		Password: "another-password-here",
	}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}
