package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeUserStore struct {
	users map[string]User
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (User, error) {
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type testEnvelope struct {
	Success bool       `json:"success"`
	Error   *errorBody `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error == nil {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
	return body.Error.Code
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestGate(publicPaths []string) (*Gate, *TokenManager, *fakeUserStore) {
	manager := testTokenManager()
	store := &fakeUserStore{users: map[string]User{}}
	return NewGate(manager, store, publicPaths), manager, store
}

func activeUser(id string, role Role, perms ...string) User {
	return User{
		ID:          id,
		Email:       id + "@example.com",
		Role:        role,
		Permissions: perms,
		Status:      StatusActive,
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	gate, _, _ := newTestGate(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "TOKEN_REQUIRED" {
		t.Fatalf("expected TOKEN_REQUIRED, got %s", code)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	gate, _, _ := newTestGate(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_TOKEN" {
		t.Fatalf("expected INVALID_TOKEN, got %s", code)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	expired := NewTokenManager(TokenConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     -time.Minute,
		RefreshTTL:    168 * time.Hour,
		Issuer:        "perks-admin",
		Audience:      "perks-admin-api",
	})
	store := &fakeUserStore{users: map[string]User{}}
	gate := NewGate(expired, store, nil)

	token, _, err := expired.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if code := errorCode(t, rec); code != "TOKEN_EXPIRED" {
		t.Fatalf("expected TOKEN_EXPIRED, got %s", code)
	}
}

func TestAuthenticate_UnknownSubject(t *testing.T) {
	gate, manager, _ := newTestGate(nil)

	token, _, err := manager.IssueAccess("ghost")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "USER_NOT_FOUND" {
		t.Fatalf("expected USER_NOT_FOUND, got %s", code)
	}
}

func TestAuthenticate_InactiveAccount(t *testing.T) {
	gate, manager, store := newTestGate(nil)
	user := activeUser("user-1", RoleUser)
	user.Status = StatusSuspended
	store.users["user-1"] = user

	token, _, err := manager.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "ACCOUNT_INACTIVE" {
		t.Fatalf("expected ACCOUNT_INACTIVE, got %s", code)
	}
}

func TestAuthenticate_LockedAccount(t *testing.T) {
	gate, manager, store := newTestGate(nil)
	user := activeUser("user-1", RoleUser)
	lockedUntil := time.Now().UTC().Add(10 * time.Minute)
	user.LockedUntil = &lockedUntil
	store.users["user-1"] = user

	token, _, err := manager.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "ACCOUNT_LOCKED" {
		t.Fatalf("expected ACCOUNT_LOCKED, got %s", code)
	}
}

func TestAuthenticate_ExpiredLockAdmits(t *testing.T) {
	gate, manager, store := newTestGate(nil)
	user := activeUser("user-1", RoleUser)
	lockedUntil := time.Now().UTC().Add(-time.Minute)
	user.LockedUntil = &lockedUntil
	store.users["user-1"] = user

	token, _, err := manager.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthenticate_AttachesPrincipal(t *testing.T) {
	gate, manager, store := newTestGate(nil)
	store.users["user-1"] = activeUser("user-1", RoleContentEditor, PermPerksWrite)

	token, _, err := manager.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	var got Principal
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		got = principal
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.ID != "user-1" || got.Role != RoleContentEditor {
		t.Fatalf("unexpected principal: %+v", got)
	}
	if !got.HasPermissions(PermPerksWrite) {
		t.Fatal("expected perks:write permission on principal")
	}
}

func TestAuthenticate_PublicPathSkipsTokenWork(t *testing.T) {
	gate, _, _ := newTestGate([]string{"/health", "/perks"})

	for _, path := range []string{"/health", "/perks", "/perks/some-id"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		gate.Authenticate(okHandler()).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for public path %s, got %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perksonal", nil)
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-public prefix sibling, got %d", rec.Code)
	}
}

func TestOptional_NeverRejects(t *testing.T) {
	gate, manager, store := newTestGate(nil)
	store.users["user-1"] = activeUser("user-1", RoleUser)

	cases := map[string]string{
		"no token":  "",
		"bad token": "Bearer garbage",
	}
	for name, header := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/perks", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		gate.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFrom(r.Context()); ok {
				t.Fatalf("%s: expected no principal", name)
			}
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", name, rec.Code)
		}
	}

	token, _, err := manager.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/perks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			t.Fatal("expected principal for valid token")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestVerifyRefreshToken(t *testing.T) {
	gate, manager, _ := newTestGate(nil)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":""}`))
		gate.VerifyRefreshToken(okHandler()).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "REFRESH_TOKEN_REQUIRED" {
			t.Fatalf("expected REFRESH_TOKEN_REQUIRED, got %s", code)
		}
	})

	t.Run("access token rejected", func(t *testing.T) {
		access, _, err := manager.IssueAccess("user-1")
		if err != nil {
			t.Fatalf("issue access: %v", err)
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"`+access+`"}`))
		gate.VerifyRefreshToken(okHandler()).ServeHTTP(rec, req)

		if code := errorCode(t, rec); code != "INVALID_REFRESH_TOKEN" {
			t.Fatalf("expected INVALID_REFRESH_TOKEN, got %s", code)
		}
	})

	t.Run("valid token attaches subject", func(t *testing.T) {
		refresh, err := manager.IssueRefresh("user-1")
		if err != nil {
			t.Fatalf("issue refresh: %v", err)
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"`+refresh+`"}`))
		gate.VerifyRefreshToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := RefreshSubjectFrom(r.Context())
			if !ok || subject != "user-1" {
				t.Fatalf("expected refresh subject user-1, got %q (%v)", subject, ok)
			}
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func withPrincipal(req *http.Request, p Principal) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), principalKey, p))
}

func TestRequireRole(t *testing.T) {
	middleware := RequireRole(RoleSuperAdmin, RoleContentEditor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/categories", nil)
	middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/categories", nil), Principal{ID: "u", Role: RoleUser})
	middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INSUFFICIENT_PERMISSIONS" {
		t.Fatalf("expected INSUFFICIENT_PERMISSIONS, got %s", code)
	}

	rec = httptest.NewRecorder()
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/categories", nil), Principal{ID: "e", Role: RoleContentEditor})
	middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for editor, got %d", rec.Code)
	}
}

func TestRequirePermission_AllMustBePresent(t *testing.T) {
	middleware := RequirePermission(PermBlogWrite, PermBlogPublish)

	partial := Principal{ID: "e", Role: RoleContentEditor, Permissions: []string{PermBlogWrite}}
	rec := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/blog", nil), partial)
	middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for partial grant, got %d", rec.Code)
	}

	full := Principal{ID: "e", Role: RoleContentEditor, Permissions: []string{PermBlogWrite, PermBlogPublish}}
	rec = httptest.NewRecorder()
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/blog", nil), full)
	middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for full grant, got %d", rec.Code)
	}
}

func TestRequireOwnership(t *testing.T) {
	middleware := RequireOwnership("created_by")

	run := func(p Principal) (OwnershipCheck, Principal) {
		var check OwnershipCheck
		rec := httptest.NewRecorder()
		req := withPrincipal(httptest.NewRequest(http.MethodPut, "/perks/x", nil), p)
		middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := OwnershipFrom(r.Context())
			if !ok {
				t.Fatal("expected ownership check in context")
			}
			check = got
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		return check, p
	}

	check, owner := run(Principal{ID: "owner-1", Role: RoleContentEditor})
	if check.Field != "created_by" {
		t.Fatalf("expected field created_by, got %s", check.Field)
	}
	if !check.Allows(owner, "owner-1") {
		t.Fatal("owner should act on own resource")
	}
	if check.Allows(owner, "someone-else") {
		t.Fatal("editor must not act on another owner's resource")
	}

	check, admin := run(Principal{ID: "admin-1", Role: RoleSuperAdmin})
	if !check.Allows(admin, "someone-else") {
		t.Fatal("super admin should bypass ownership")
	}
}
