package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"perks-admin/internal/respond"
)

type contextKey int

const (
	principalKey contextKey = iota
	ownershipKey
	refreshSubjectKey
)

// UserStore loads the acting account for a verified token subject.
// Implementations return ErrUserNotFound when the subject does not resolve.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
}

// Gate decides, per request, whether it proceeds and as whom.
type Gate struct {
	tokens      *TokenManager
	users       UserStore
	publicPaths []string
}

func NewGate(tokens *TokenManager, users UserStore, publicPaths []string) *Gate {
	return &Gate{tokens: tokens, users: users, publicPaths: publicPaths}
}

// Authenticate enforces a valid access token and an active, unlocked
// account, then attaches the Principal. Allow-listed public paths skip all
// token work.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			respond.Error(w, http.StatusUnauthorized, respond.CodeTokenRequired, "authorization token required")
			return
		}

		userID, err := g.tokens.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				respond.Error(w, http.StatusUnauthorized, respond.CodeTokenExpired, "access token expired")
				return
			}
			respond.Error(w, http.StatusUnauthorized, respond.CodeInvalidToken, "access token is invalid")
			return
		}

		user, err := g.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				respond.Error(w, http.StatusUnauthorized, respond.CodeUserNotFound, "token subject no longer exists")
				return
			}
			sentry.CaptureException(err)
			respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to load account")
			return
		}

		if user.Status != StatusActive {
			respond.Error(w, http.StatusForbidden, respond.CodeAccountInactive, "account is not active")
			return
		}
		if user.Locked(time.Now().UTC()) {
			respond.Error(w, http.StatusLocked, respond.CodeAccountLocked, "account temporarily locked")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principalFor(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional runs the same token checks but never rejects: a missing or bad
// token simply leaves no principal attached.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := g.tokens.VerifyAccess(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := g.users.GetByID(r.Context(), userID)
		if err != nil || user.Status != StatusActive || user.Locked(time.Now().UTC()) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principalFor(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// VerifyRefreshToken verifies the refresh token from the request body
// against the refresh-token secret and attaches its subject.
func (g *Gate) VerifyRefreshToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid json body")
			return
		}

		body.RefreshToken = strings.TrimSpace(body.RefreshToken)
		if body.RefreshToken == "" {
			respond.Error(w, http.StatusUnauthorized, respond.CodeRefreshTokenRequired, "refresh token required")
			return
		}

		userID, err := g.tokens.VerifyRefresh(body.RefreshToken)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				respond.Error(w, http.StatusUnauthorized, respond.CodeRefreshTokenExpired, "refresh token expired")
				return
			}
			respond.Error(w, http.StatusUnauthorized, respond.CodeInvalidRefreshToken, "refresh token is invalid")
			return
		}

		ctx := context.WithValue(r.Context(), refreshSubjectKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route to the given roles. Runs after Authenticate.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
				return
			}
			if !principal.HasRole(roles...) {
				respond.Error(w, http.StatusForbidden, respond.CodeInsufficientPerms, "role not permitted for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates a route to principals holding every listed
// permission.
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
				return
			}
			if !principal.HasPermissions(perms...) {
				respond.Error(w, http.StatusForbidden, respond.CodeInsufficientPerms, "missing required permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnershipCheck is deferred authorization metadata: the handler knows the
// resource's owner field, the gate only records which field to compare and
// whether the principal may bypass the check entirely.
type OwnershipCheck struct {
	Field  string
	Bypass bool
}

// Allows reports whether the principal may act on a resource owned by
// ownerID.
func (c OwnershipCheck) Allows(p Principal, ownerID string) bool {
	return c.Bypass || p.ID == ownerID
}

// RequireOwnership attaches an OwnershipCheck for the handler to apply.
// Super admins always bypass ownership.
func RequireOwnership(field string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
				return
			}

			check := OwnershipCheck{Field: field, Bypass: principal.Role == RoleSuperAdmin}
			ctx := context.WithValue(r.Context(), ownershipKey, check)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

func OwnershipFrom(ctx context.Context) (OwnershipCheck, bool) {
	check, ok := ctx.Value(ownershipKey).(OwnershipCheck)
	return check, ok
}

func RefreshSubjectFrom(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(refreshSubjectKey).(string)
	return subject, ok
}

func (g *Gate) isPublic(path string) bool {
	for _, public := range g.publicPaths {
		if path == public || strings.HasPrefix(path, public+"/") {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
