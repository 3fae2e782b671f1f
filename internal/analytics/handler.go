package analytics

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"perks-admin/internal/lead"
	"perks-admin/internal/respond"
)

type Handler struct {
	repo  *Repository
	leads *lead.Repository
}

func NewHandler(repo *Repository, leads *lead.Repository) *Handler {
	return &Handler{repo: repo, leads: leads}
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.repo.Overview(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to load overview")
		return
	}

	respond.JSON(w, http.StatusOK, overview)
}

// ExportLeads streams every lead and partner enquiry as CSV.
func (h *Handler) ExportLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.leads.ListAll(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to export leads")
		return
	}

	filename := fmt.Sprintf("leads-%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	record := []string{"id", "kind", "name", "email", "company", "message", "status", "created_at"}
	if err := writer.Write(record); err != nil {
		return
	}

	for _, l := range leads {
		record = []string{
			l.ID,
			string(l.Kind),
			l.Name,
			l.Email,
			l.Company,
			l.Message,
			string(l.Status),
			l.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}

	writer.Flush()
}
