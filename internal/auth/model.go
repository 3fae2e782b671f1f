package auth

import "time"

type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleContentEditor Role = "content_editor"
	RoleUser          Role = "user"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleSuperAdmin, RoleContentEditor, RoleUser:
		return Role(value), true
	default:
		return "", false
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

type User struct {
	ID             string
	Email          string
	Name           string
	PasswordHash   string
	Role           Role
	Permissions    []string
	Status         Status
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Principal is the identity attached to a request after the gate passes.
// It is rebuilt from the user record on every request and never persisted.
type Principal struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions"`
}

func (p Principal) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// HasPermissions reports whether every requested permission is present.
func (p Principal) HasPermissions(perms ...string) bool {
	for _, want := range perms {
		found := false
		for _, have := range p.Permissions {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func principalFor(user User) Principal {
	return Principal{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: user.Permissions,
	}
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
