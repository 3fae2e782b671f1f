package auth

import (
	"errors"
	"time"
)

var (
	ErrTokenRequired      = errors.New("authorization token required")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountInactive    = errors.New("account is not active")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// ErrAccountLocked carries the lock deadline so handlers can emit Retry-After.
type ErrAccountLocked struct {
	Until time.Time
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}
