package lead

import "time"

type Kind string

const (
	KindLead    Kind = "lead"
	KindPartner Kind = "partner"
)

type LeadStatus string

const (
	StatusNew       LeadStatus = "new"
	StatusContacted LeadStatus = "contacted"
	StatusConverted LeadStatus = "converted"
	StatusRejected  LeadStatus = "rejected"
)

func ParseStatus(value string) (LeadStatus, bool) {
	switch LeadStatus(value) {
	case StatusNew, StatusContacted, StatusConverted, StatusRejected:
		return LeadStatus(value), true
	default:
		return "", false
	}
}

type Lead struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Company   string     `json:"company,omitempty"`
	Message   string     `json:"message,omitempty"`
	Status    LeadStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Input struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Message string `json:"message"`
}
