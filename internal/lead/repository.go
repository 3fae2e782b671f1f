package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const leadColumns = `id, kind, name, email, company, message, status, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, kind Kind, input Input) (Lead, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Lead{}, fmt.Errorf("generate lead id: %w", err)
	}

	now := time.Now().UTC()
	l := Lead{
		ID:        id.String(),
		Kind:      kind,
		Name:      input.Name,
		Email:     input.Email,
		Company:   input.Company,
		Message:   input.Message,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO leads (id, kind, name, email, company, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, l.ID, string(l.Kind), l.Name, l.Email, l.Company, l.Message, string(l.Status), now)
	if err != nil {
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}

	return l, nil
}

func (r *Repository) List(ctx context.Context, kind Kind) ([]Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE kind = $1
		ORDER BY created_at DESC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.Kind, &l.Name, &l.Email, &l.Company, &l.Message, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

// ListAll streams every lead regardless of kind, oldest first, for exports.
func (r *Repository) ListAll(ctx context.Context) ([]Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.Kind, &l.Name, &l.Email, &l.Company, &l.Message, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status LeadStatus) (Lead, error) {
	var l Lead
	err := r.db.QueryRowContext(ctx, `
		UPDATE leads
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+leadColumns+`
	`, id, string(status), time.Now().UTC()).
		Scan(&l.ID, &l.Kind, &l.Name, &l.Email, &l.Company, &l.Message, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, err
		}
		return Lead{}, fmt.Errorf("update lead status: %w", err)
	}
	return l, nil
}

// DeleteClosed purges converted/rejected leads older than the retention
// cutoff, in batches so the maintenance endpoint stays within its deadline.
func (r *Repository) DeleteClosed(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM leads
			WHERE status IN ('converted', 'rejected') AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM leads t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete closed leads: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("closed leads rows affected: %w", err)
	}
	return affected, nil
}
