package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"perks-admin/internal/respond"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxJSONBodyBytes  = 1 << 20
	minPasswordLength = 12
	maxPasswordLength = 200
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if !emailRegex.MatchString(body.Email) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "email format is invalid")
		return
	}
	if len(body.Password) < minPasswordLength || len(body.Password) > maxPasswordLength {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "password format is invalid")
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	body.Name = strings.TrimSpace(body.Name)
	if !emailRegex.MatchString(body.Email) || len(body.Email) > 254 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "email format is invalid")
		return
	}
	if body.Name == "" || len(body.Name) > 100 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "name is required")
		return
	}
	if len(body.Password) < minPasswordLength || len(body.Password) > maxPasswordLength {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "password must be at least 12 characters")
		return
	}

	tokens, err := h.service.Register(r.Context(), RegisterInput{
		Email:    body.Email,
		Name:     body.Name,
		Password: body.Password,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			respond.Error(w, http.StatusConflict, respond.CodeEmailTaken, "email is already registered")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to register")
		return
	}

	respond.JSON(w, http.StatusCreated, tokens)
}

// Refresh runs behind Gate.VerifyRefreshToken, which already parsed the body
// and validated the token against the refresh secret.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := RefreshSubjectFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeRefreshTokenRequired, "refresh token required")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), userID)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, tokens)
}

// Me echoes the authenticated principal back to the caller.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	respond.JSON(w, http.StatusOK, principal)
}

func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(w, http.StatusUnauthorized, respond.CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, ErrAccountInactive):
		respond.Error(w, http.StatusForbidden, respond.CodeAccountInactive, "account is not active")
	case errors.Is(err, ErrUserNotFound):
		respond.Error(w, http.StatusUnauthorized, respond.CodeUserNotFound, "account no longer exists")
	default:
		var locked ErrAccountLocked
		if errors.As(err, &locked) {
			retryAfter := int(time.Until(locked.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respond.Error(w, http.StatusLocked, respond.CodeAccountLocked, "account temporarily locked")
			return
		}
		sentry.CaptureException(err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "authentication failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid json body")
		return false
	}
	return true
}
