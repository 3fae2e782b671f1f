package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"perks-admin/internal/respond"
)

const maxUploadSizeBytes = 10 << 20

type ImageUploader interface {
	UploadImage(ctx context.Context, imageSource string) (Upload, error)
}

type UploadHandler struct {
	uploader ImageUploader
}

func NewUploadHandler(uploader ImageUploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

// Upload accepts a multipart image file and pushes it to the image host.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "image uploader is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "failed to read file")
		return
	}
	if len(data) == 0 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "file is empty")
		return
	}
	if len(data) > maxUploadSizeBytes {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "file is too large")
		return
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidationError, "file must be an image")
		return
	}

	imageSource := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
	upload, err := h.uploader.UploadImage(r.Context(), imageSource)
	if err != nil {
		sentry.CaptureException(err)
		respond.Error(w, http.StatusBadGateway, respond.CodeUploadFailed, "failed to upload image")
		return
	}

	respond.JSON(w, http.StatusOK, upload)
}
