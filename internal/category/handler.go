package category

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

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to list categories")
		return
	}

	respond.JSON(w, http.StatusOK, categories)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	c, err := h.repo.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			respond.Error(w, http.StatusConflict, respond.CodeValidationError, "slug already in use")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to create category")
		return
	}

	respond.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid category id")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	c, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "category not found")
			return
		}
		if errors.Is(err, ErrSlugTaken) {
			respond.Error(w, http.StatusConflict, respond.CodeValidationError, "slug already in use")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to update category")
		return
	}

	respond.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid category id")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to delete category")
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
	input.Name = strings.TrimSpace(input.Name)

	if !slugRegex.MatchString(input.Slug) || len(input.Slug) > 80 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "slug is invalid")
		return Input{}, false
	}
	if input.Name == "" || !utf8.ValidString(input.Name) || len(input.Name) > 120 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "name is invalid")
		return Input{}, false
	}
	if input.ParentID != nil {
		if _, err := uuid.Parse(*input.ParentID); err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "parent_id is invalid")
			return Input{}, false
		}
	}

	return input, true
}
