package perk

import "time"

type PerkStatus string

const (
	StatusDraft     PerkStatus = "draft"
	StatusPublished PerkStatus = "published"
)

type Perk struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	CategoryID  string     `json:"category_id"`
	PartnerName string     `json:"partner_name"`
	ImageURL    string     `json:"image_url"`
	Status      PerkStatus `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Input struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	CategoryID  string `json:"category_id"`
	PartnerName string `json:"partner_name"`
	ImageURL    string `json:"image_url"`
	Status      string `json:"status"`
}
