package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

// Overview is the entity-count snapshot shown on the admin dashboard.
type Overview struct {
	Users          int64 `json:"users"`
	Categories     int64 `json:"categories"`
	Perks          int64 `json:"perks"`
	PublishedPerks int64 `json:"published_perks"`
	Leads          int64 `json:"leads"`
	NewLeads       int64 `json:"new_leads"`
	Partners       int64 `json:"partners"`
	BlogPosts      int64 `json:"blog_posts"`
	Pages          int64 `json:"pages"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM perks),
			(SELECT COUNT(*) FROM perks WHERE status = 'published'),
			(SELECT COUNT(*) FROM leads WHERE kind = 'lead'),
			(SELECT COUNT(*) FROM leads WHERE kind = 'lead' AND status = 'new'),
			(SELECT COUNT(*) FROM leads WHERE kind = 'partner'),
			(SELECT COUNT(*) FROM blog_posts),
			(SELECT COUNT(*) FROM pages)
	`).Scan(
		&o.Users,
		&o.Categories,
		&o.Perks,
		&o.PublishedPerks,
		&o.Leads,
		&o.NewLeads,
		&o.Partners,
		&o.BlogPosts,
		&o.Pages,
	)
	if err != nil {
		return Overview{}, fmt.Errorf("query overview counts: %w", err)
	}
	return o, nil
}
