package perk

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"perks-admin/internal/auth"
	"perks-admin/internal/respond"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List shows published perks to everyone; a logged-in editor or admin also
// sees drafts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var (
		perks []Perk
		err   error
	)

	principal, ok := auth.PrincipalFrom(r.Context())
	if ok && principal.HasRole(auth.RoleSuperAdmin, auth.RoleContentEditor) {
		perks, err = h.repo.ListAll(r.Context())
	} else {
		perks, err = h.repo.ListPublished(r.Context())
	}
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to list perks")
		return
	}

	respond.JSON(w, http.StatusOK, perks)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" || len(query) > 100 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "q parameter is required")
		return
	}

	perks, err := h.repo.Search(r.Context(), query)
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to search perks")
		return
	}

	respond.JSON(w, http.StatusOK, perks)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid perk id")
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "perk not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to load perk")
		return
	}

	if p.Status != StatusPublished {
		principal, ok := auth.PrincipalFrom(r.Context())
		if !ok || !principal.HasRole(auth.RoleSuperAdmin, auth.RoleContentEditor) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "perk not found")
			return
		}
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Create(r.Context(), input, principal.ID)
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to create perk")
		return
	}

	respond.JSON(w, http.StatusCreated, p)
}

// Update applies the ownership check the gate attached: editors may only
// touch their own perks, super admins bypass.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid perk id")
		return
	}

	existing, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "perk not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to load perk")
		return
	}

	if check, ok := auth.OwnershipFrom(r.Context()); ok && !check.Allows(principal, existing.CreatedBy) {
		respond.Error(w, http.StatusForbidden, respond.CodeInsufficientPerms, "only the perk owner may modify it")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "perk not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to update perk")
		return
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid perk id")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "perk not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to delete perk")
		return
	}

	respond.NoContent(w)
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid json body")
		return Input{}, false
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Summary = strings.TrimSpace(input.Summary)
	input.PartnerName = strings.TrimSpace(input.PartnerName)
	input.ImageURL = strings.TrimSpace(input.ImageURL)
	input.Status = strings.TrimSpace(strings.ToLower(input.Status))
	if input.Status == "" {
		input.Status = string(StatusDraft)
	}

	if input.Title == "" || !utf8.ValidString(input.Title) || len(input.Title) > 150 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "title is invalid")
		return Input{}, false
	}
	if !utf8.ValidString(input.Summary) || len(input.Summary) > 1000 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "summary is invalid")
		return Input{}, false
	}
	if _, err := uuid.Parse(input.CategoryID); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "category_id is invalid")
		return Input{}, false
	}
	if input.PartnerName == "" || len(input.PartnerName) > 150 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "partner_name is invalid")
		return Input{}, false
	}
	if input.Status != string(StatusDraft) && input.Status != string(StatusPublished) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "status must be draft or published")
		return Input{}, false
	}
	if input.ImageURL != "" {
		parsed, err := url.ParseRequestURI(input.ImageURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "image_url must be a valid link")
			return Input{}, false
		}
		if len(input.ImageURL) > 500 {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "image_url is too long")
			return Input{}, false
		}
	}

	return input, true
}
