package blog

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

	"perks-admin/internal/auth"
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
	var (
		posts []Post
		err   error
	)

	principal, ok := auth.PrincipalFrom(r.Context())
	if ok && principal.HasPermissions(auth.PermBlogWrite) {
		posts, err = h.repo.ListAll(r.Context())
	} else {
		posts, err = h.repo.ListPublished(r.Context())
	}
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to list posts")
		return
	}

	respond.JSON(w, http.StatusOK, posts)
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
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "post not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to load post")
		return
	}

	if !p.Published {
		principal, ok := auth.PrincipalFrom(r.Context())
		if !ok || !principal.HasPermissions(auth.PermBlogWrite) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "post not found")
			return
		}
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			respond.Error(w, http.StatusConflict, respond.CodeValidationError, "slug already in use")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to create post")
		return
	}

	respond.JSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid post id")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "post not found")
			return
		}
		if errors.Is(err, ErrSlugTaken) {
			respond.Error(w, http.StatusConflict, respond.CodeValidationError, "slug already in use")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to update post")
		return
	}

	respond.JSON(w, http.StatusOK, p)
}

// SetPublished toggles visibility; requires the blog:publish permission,
// which plain blog:write editors do not hold.
func (h *Handler) SetPublished(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid post id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body struct {
		Published bool `json:"published"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid json body")
		return
	}

	p, err := h.repo.SetPublished(r.Context(), id, body.Published)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "post not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to update post")
		return
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid post id")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "post not found")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to delete post")
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
	input.Slug = strings.TrimSpace(strings.ToLower(input.Slug))
	input.Body = strings.TrimSpace(input.Body)

	if input.Title == "" || !utf8.ValidString(input.Title) || len(input.Title) > 200 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "title is invalid")
		return Input{}, false
	}
	if !slugRegex.MatchString(input.Slug) || len(input.Slug) > 120 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "slug is invalid")
		return Input{}, false
	}
	if !utf8.ValidString(input.Body) || len(input.Body) > maxBodyLength {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "body is invalid")
		return Input{}, false
	}

	return input, true
}
