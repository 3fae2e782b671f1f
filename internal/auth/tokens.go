package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// TokenManager signs and verifies the two token kinds. Access and refresh
// tokens live in separate signature domains: different secrets plus a typ
// claim, so one can never stand in for the other.
type TokenManager struct {
	cfg TokenConfig
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	return &TokenManager{cfg: cfg}
}

func (m *TokenManager) IssueAccess(userID string) (string, int64, error) {
	encoded, err := m.issue(userID, tokenTypeAccess, m.cfg.AccessSecret, m.cfg.AccessTTL)
	if err != nil {
		return "", 0, err
	}
	return encoded, int64(m.cfg.AccessTTL.Seconds()), nil
}

func (m *TokenManager) IssueRefresh(userID string) (string, error) {
	return m.issue(userID, tokenTypeRefresh, m.cfg.RefreshSecret, m.cfg.RefreshTTL)
}

func (m *TokenManager) issue(userID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return encoded, nil
}

// VerifyAccess returns the subject user id of a valid access token.
// Expiry is reported as ErrTokenExpired, every other failure as
// ErrInvalidToken; clients rely on that distinction to pick between a
// silent refresh and a forced re-login.
func (m *TokenManager) VerifyAccess(token string) (string, error) {
	return m.verify(token, tokenTypeAccess, m.cfg.AccessSecret)
}

func (m *TokenManager) VerifyRefresh(token string) (string, error) {
	return m.verify(token, tokenTypeRefresh, m.cfg.RefreshSecret)
}

func (m *TokenManager) verify(token, wantType string, secret []byte) (string, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || claims.TokenType != wantType || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
