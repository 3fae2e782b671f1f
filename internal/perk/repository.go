package perk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const perkColumns = `id, title, summary, category_id, partner_name, image_url, status, created_by, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListPublished is the public storefront listing.
func (r *Repository) ListPublished(ctx context.Context) ([]Perk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+perkColumns+`
		FROM perks
		WHERE status = 'published'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query published perks: %w", err)
	}
	return collect(rows)
}

// ListAll includes drafts; admin surface only.
func (r *Repository) ListAll(ctx context.Context) ([]Perk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+perkColumns+`
		FROM perks
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query perks: %w", err)
	}
	return collect(rows)
}

func (r *Repository) Search(ctx context.Context, query string) ([]Perk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+perkColumns+`
		FROM perks
		WHERE status = 'published'
		  AND (title ILIKE '%' || $1 || '%' OR summary ILIKE '%' || $1 || '%' OR partner_name ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT 50
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search perks: %w", err)
	}
	return collect(rows)
}

func (r *Repository) GetByID(ctx context.Context, id string) (Perk, error) {
	var p Perk
	err := r.db.QueryRowContext(ctx, `
		SELECT `+perkColumns+`
		FROM perks
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.Summary, &p.CategoryID, &p.PartnerName, &p.ImageURL, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Perk{}, err
		}
		return Perk{}, fmt.Errorf("query perk: %w", err)
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, input Input, createdBy string) (Perk, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Perk{}, fmt.Errorf("generate perk id: %w", err)
	}

	now := time.Now().UTC()
	p := Perk{
		ID:          id.String(),
		Title:       input.Title,
		Summary:     input.Summary,
		CategoryID:  input.CategoryID,
		PartnerName: input.PartnerName,
		ImageURL:    input.ImageURL,
		Status:      PerkStatus(input.Status),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO perks (id, title, summary, category_id, partner_name, image_url, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, p.ID, p.Title, p.Summary, p.CategoryID, p.PartnerName, p.ImageURL, string(p.Status), p.CreatedBy, now)
	if err != nil {
		return Perk{}, fmt.Errorf("insert perk: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, id string, input Input) (Perk, error) {
	var p Perk
	err := r.db.QueryRowContext(ctx, `
		UPDATE perks
		SET title = $2, summary = $3, category_id = $4, partner_name = $5, image_url = $6, status = $7, updated_at = $8
		WHERE id = $1
		RETURNING `+perkColumns+`
	`, id, input.Title, input.Summary, input.CategoryID, input.PartnerName, input.ImageURL, input.Status, time.Now().UTC()).
		Scan(&p.ID, &p.Title, &p.Summary, &p.CategoryID, &p.PartnerName, &p.ImageURL, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Perk{}, err
		}
		return Perk{}, fmt.Errorf("update perk: %w", err)
	}
	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM perks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete perk: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func collect(rows *sql.Rows) ([]Perk, error) {
	defer rows.Close()

	perks := make([]Perk, 0)
	for rows.Next() {
		var p Perk
		if err := rows.Scan(&p.ID, &p.Title, &p.Summary, &p.CategoryID, &p.PartnerName, &p.ImageURL, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan perk: %w", err)
		}
		perks = append(perks, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate perks: %w", err)
	}
	return perks, nil
}
