package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrSlugTaken = errors.New("post slug already exists")

const postColumns = `id, title, slug, body, published, published_at, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListPublished(ctx context.Context) ([]Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM blog_posts
		WHERE published
		ORDER BY published_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query published posts: %w", err)
	}
	return collect(rows)
}

func (r *Repository) ListAll(ctx context.Context) ([]Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM blog_posts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	return collect(rows)
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM blog_posts
		WHERE slug = $1
	`, slug)
	return scan(row)
}

func (r *Repository) Create(ctx context.Context, input Input) (Post, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Post{}, fmt.Errorf("generate post id: %w", err)
	}

	now := time.Now().UTC()
	p := Post{
		ID:        id.String(),
		Title:     input.Title,
		Slug:      input.Slug,
		Body:      input.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO blog_posts (id, title, slug, body, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	`, p.ID, p.Title, p.Slug, p.Body, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Post{}, ErrSlugTaken
		}
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, id string, input Input) (Post, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE blog_posts
		SET title = $2, slug = $3, body = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+postColumns+`
	`, id, input.Title, input.Slug, input.Body, time.Now().UTC())

	p, err := scan(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Post{}, ErrSlugTaken
		}
		return Post{}, err
	}
	return p, nil
}

// SetPublished flips the published flag, stamping published_at on the first
// publish only.
func (r *Repository) SetPublished(ctx context.Context, id string, published bool) (Post, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE blog_posts
		SET published = $2,
		    published_at = CASE WHEN $2 AND published_at IS NULL THEN $3 ELSE published_at END,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+postColumns+`
	`, id, published, time.Now().UTC())
	return scan(row)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
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

func scan(row *sql.Row) (Post, error) {
	var p Post
	var publishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Published, &publishedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	if publishedAt.Valid {
		value := publishedAt.Time.UTC()
		p.PublishedAt = &value
	}
	return p, nil
}

func collect(rows *sql.Rows) ([]Post, error) {
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		var p Post
		var publishedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Published, &publishedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if publishedAt.Valid {
			value := publishedAt.Time.UTC()
			p.PublishedAt = &value
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
