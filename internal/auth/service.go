package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute
)

// Store is the account persistence the login flow needs. Repository is the
// production implementation.
type Store interface {
	UserStore
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) error
	RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error)
	ResetFailedLogins(ctx context.Context, userID string) error
	UpsertAdmin(ctx context.Context, email, passwordHash string) error
}

type Service struct {
	store       Store
	tokens      *TokenManager
	bcryptCost  int
	maxAttempts int
	lockWindow  time.Duration
}

func NewService(store Store, tokens *TokenManager, bcryptCost int) *Service {
	return &Service{
		store:       store,
		tokens:      tokens,
		bcryptCost:  bcryptCost,
		maxAttempts: defaultMaxAttempts,
		lockWindow:  defaultLockWindow,
	}
}

func (s *Service) WithLockoutConfig(maxAttempts int, lockWindow time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockWindow > 0 {
		s.lockWindow = lockWindow
	}
}

// Login checks credentials and account state. Failed attempts increment the
// account counter; reaching the threshold locks the account for the
// configured window. A successful login resets the counter.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return Tokens{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, err
	}

	if user.Status != StatusActive {
		return Tokens{}, ErrAccountInactive
	}
	if user.Locked(now) {
		return Tokens{}, ErrAccountLocked{Until: *user.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		lockedUntil, recErr := s.store.RecordFailedLogin(ctx, user.ID, s.maxAttempts, s.lockWindow, now)
		if recErr != nil {
			return Tokens{}, recErr
		}
		if lockedUntil != nil {
			return Tokens{}, ErrAccountLocked{Until: *lockedUntil}
		}
		return Tokens{}, ErrInvalidCredentials
	}

	if err := s.store.ResetFailedLogins(ctx, user.ID); err != nil {
		return Tokens{}, err
	}

	return s.issueTokens(user.ID)
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (Tokens, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return Tokens{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		Email:        strings.TrimSpace(strings.ToLower(input.Email)),
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: string(hash),
		Role:         RoleUser,
		Permissions:  []string{},
		Status:       StatusActive,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return Tokens{}, err
	}

	created, err := s.store.GetByEmail(ctx, user.Email)
	if err != nil {
		return Tokens{}, err
	}

	return s.issueTokens(created.ID)
}

// Refresh mints a fresh token pair for an already-verified refresh subject.
// Account state is re-checked so a deactivated or locked user cannot keep a
// session alive through refreshes.
func (s *Service) Refresh(ctx context.Context, userID string) (Tokens, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return Tokens{}, err
	}

	if user.Status != StatusActive {
		return Tokens{}, ErrAccountInactive
	}
	if user.Locked(time.Now().UTC()) {
		return Tokens{}, ErrAccountLocked{Until: *user.LockedUntil}
	}

	return s.issueTokens(user.ID)
}

// BootstrapAdmin seeds the super_admin account from env credentials. Both
// values must be supplied together; supplying neither skips the bootstrap.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return s.store.UpsertAdmin(ctx, email, string(hash))
}

func (s *Service) issueTokens(userID string) (Tokens, error) {
	access, expiresIn, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}
