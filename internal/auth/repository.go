package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, name, password_hash, role, permissions, status, failed_attempts, locked_until, created_at, updated_at`

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row, "id")
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row, "email")
}

func (r *Repository) Create(ctx context.Context, user User) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}

	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, permissions, status, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)
	`, id.String(), user.Email, user.Name, user.PasswordHash, string(user.Role), perms, string(user.Status), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// RecordFailedLogin bumps the account's failed-attempt counter and, when the
// threshold is reached, sets locked_until and resets the counter. A single
// statement keeps concurrent failures from undercounting.
func (r *Repository) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	lockUntil := now.UTC().Add(lockFor)

	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET
			failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
			locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = $4
		WHERE id = $1
		RETURNING locked_until
	`, userID, maxAttempts, lockUntil, now.UTC()).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("record failed login: %w", err)
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		value := lockedUntil.Time.UTC()
		return &value, nil
	}
	return nil, nil
}

func (r *Repository) ResetFailedLogins(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}

// UpsertAdmin guarantees a super_admin account exists for the configured
// email, refreshing its password hash and grants on every boot.
func (r *Repository) UpsertAdmin(ctx context.Context, email, passwordHash string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate admin id: %w", err)
	}

	perms, err := json.Marshal(AllPermissions())
	if err != nil {
		return fmt.Errorf("encode admin permissions: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, permissions, status, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, 'Administrator', $3, $4, $5, $6, 0, $7, $7)
		ON CONFLICT (email)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			permissions = EXCLUDED.permissions,
			status = EXCLUDED.status,
			failed_attempts = 0,
			locked_until = NULL,
			updated_at = EXCLUDED.updated_at
	`, id.String(), email, passwordHash, string(RoleSuperAdmin), perms, string(StatusActive), now)
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}

	return nil
}

// ClearStaleLockouts drops expired locks and stale failure counters so the
// table does not accumulate lockout state forever.
func (r *Repository) ClearStaleLockouts(ctx context.Context, staleAfter time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := time.Now().UTC().Add(-staleAfter)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE (locked_until IS NOT NULL AND locked_until < NOW())
			   OR (failed_attempts > 0 AND updated_at < $1)
			LIMIT $2
		)
		UPDATE users u
		SET failed_attempts = 0, locked_until = NULL
		FROM stale
		WHERE u.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear stale lockouts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale lockouts rows affected: %w", err)
	}
	return affected, nil
}

func scanUser(row *sql.Row, by string) (User, error) {
	var user User
	var permsRaw []byte
	var lockedUntil sql.NullTime
	var role, status string

	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&role, &permsRaw, &status,
		&user.FailedAttempts, &lockedUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by %s: %w", by, err)
	}

	user.Role = Role(role)
	user.Status = Status(status)
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		user.LockedUntil = &value
	}
	if len(permsRaw) > 0 {
		if err := json.Unmarshal(permsRaw, &user.Permissions); err != nil {
			return User{}, fmt.Errorf("decode permissions: %w", err)
		}
	}

	return user, nil
}
