package category

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrSlugTaken = errors.New("category slug already exists")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, parent_id, created_at, updated_at
		FROM categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		var parentID sql.NullString
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &parentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if parentID.Valid {
			c.ParentID = &parentID.String
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r *Repository) Create(ctx context.Context, input Input) (Category, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Category{}, fmt.Errorf("generate category id: %w", err)
	}

	now := time.Now().UTC()
	c := Category{
		ID:        id.String(),
		Slug:      input.Slug,
		Name:      input.Name,
		ParentID:  input.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO categories (id, slug, name, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, c.ID, c.Slug, c.Name, c.ParentID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Category{}, ErrSlugTaken
		}
		return Category{}, fmt.Errorf("insert category: %w", err)
	}

	return c, nil
}

func (r *Repository) Update(ctx context.Context, id string, input Input) (Category, error) {
	var c Category
	var parentID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		UPDATE categories
		SET slug = $2, name = $3, parent_id = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, slug, name, parent_id, created_at, updated_at
	`, id, input.Slug, input.Name, input.ParentID, time.Now().UTC()).
		Scan(&c.ID, &c.Slug, &c.Name, &parentID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Category{}, ErrSlugTaken
		}
		return Category{}, fmt.Errorf("update category: %w", err)
	}

	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	return c, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
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
