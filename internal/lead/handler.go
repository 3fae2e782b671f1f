package lead

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"perks-admin/internal/respond"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// SubmitLead is the public interest form; the per-endpoint limiter in front
// of it is the only brake on abuse.
func (h *Handler) SubmitLead(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, KindLead)
}

// SubmitPartner is the public partner application form.
func (h *Handler) SubmitPartner(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, KindPartner)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind Kind) {
	input, ok := parseInput(w, r, kind)
	if !ok {
		return
	}

	l, err := h.repo.Create(r.Context(), kind, input)
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to submit")
		return
	}

	respond.JSON(w, http.StatusCreated, l)
}

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, KindLead)
}

func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, KindPartner)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, kind Kind) {
	leads, err := h.repo.List(r.Context(), kind)
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to list submissions")
		return
	}

	respond.JSON(w, http.StatusOK, leads)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid lead id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body struct {
		Status string `json:"status"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid json body")
		return
	}

	status, ok := ParseStatus(strings.TrimSpace(strings.ToLower(body.Status)))
	if !ok {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "status is invalid")
		return
	}

	l, err := h.repo.UpdateStatus(r.Context(), id, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "lead not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to update lead")
		return
	}

	respond.JSON(w, http.StatusOK, l)
}

func parseInput(w http.ResponseWriter, r *http.Request, kind Kind) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid json body")
		return Input{}, false
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Company = strings.TrimSpace(input.Company)
	input.Message = strings.TrimSpace(input.Message)

	if input.Name == "" || !utf8.ValidString(input.Name) || len(input.Name) > 120 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "name is invalid")
		return Input{}, false
	}
	if !emailRegex.MatchString(input.Email) || len(input.Email) > 254 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "email is invalid")
		return Input{}, false
	}
	if len(input.Company) > 150 || !utf8.ValidString(input.Company) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "company is invalid")
		return Input{}, false
	}
	// Partner applications must identify the company.
	if kind == KindPartner && input.Company == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "company is required")
		return Input{}, false
	}
	if len(input.Message) > 2000 || !utf8.ValidString(input.Message) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "message is invalid")
		return Input{}, false
	}

	return input, true
}
