package page

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"

	"perks-admin/internal/respond"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const (
	maxJSONBodyBytes = 1 << 20
	maxBodyLength    = 100000
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	pages, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to list pages")
		return
	}

	respond.JSON(w, http.StatusOK, pages)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(strings.ToLower(r.PathValue("slug")))
	if !slugRegex.MatchString(slug) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid slug")
		return
	}

	p, err := h.repo.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "page not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to load page")
		return
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Upsert(r.Context(), input)
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to save page")
		return
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(strings.ToLower(r.PathValue("slug")))
	if !slugRegex.MatchString(slug) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid slug")
		return
	}

	if err := h.repo.Delete(r.Context(), slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "page not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to delete page")
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

	input.Slug = strings.TrimSpace(strings.ToLower(input.Slug))
	input.Title = strings.TrimSpace(input.Title)
	input.Body = strings.TrimSpace(input.Body)

	if !slugRegex.MatchString(input.Slug) || len(input.Slug) > 120 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "slug is invalid")
		return Input{}, false
	}
	if input.Title == "" || !utf8.ValidString(input.Title) || len(input.Title) > 200 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "title is invalid")
		return Input{}, false
	}
	if !utf8.ValidString(input.Body) || len(input.Body) > maxBodyLength {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "body is invalid")
		return Input{}, false
	}

	return input, true
}
