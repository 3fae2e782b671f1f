package page

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Page, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, title, body, created_at, updated_at
		FROM pages
		ORDER BY slug ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	pages := make([]Page, 0)
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (Page, error) {
	var p Page
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, title, body, created_at, updated_at
		FROM pages
		WHERE slug = $1
	`, slug).Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Page{}, err
		}
		return Page{}, fmt.Errorf("query page: %w", err)
	}
	return p, nil
}

// Upsert creates or replaces the page for a slug; site pages are addressed
// by slug, not id.
func (r *Repository) Upsert(ctx context.Context, input Input) (Page, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Page{}, fmt.Errorf("generate page id: %w", err)
	}

	now := time.Now().UTC()
	var p Page
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO pages (id, slug, title, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (slug)
		DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		RETURNING id, slug, title, body, created_at, updated_at
	`, id.String(), input.Slug, input.Title, input.Body, now).
		Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Page{}, fmt.Errorf("upsert page: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, slug string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pages WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
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
