package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cloudinary uploads marketplace images to a named folder and returns the
// hosted HTTPS URL. Credentials come from a cloudinary:// URL, the format
// the provider hands out in its dashboard.
type Cloudinary struct {
	apiKey     string
	apiSecret  string
	uploadURL  string
	folder     string
	httpClient *http.Client
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload is the result handed back to callers.
type Upload struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

func NewCloudinary(rawURL, folder string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}
	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	cloudName := parsed.Hostname()
	if !ok || apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		folder:    strings.Trim(folder, "/"),
		uploadURL: fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cloudName),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// UploadImage accepts a remote URL or a data: URI and returns the hosted
// asset.
func (c *Cloudinary) UploadImage(ctx context.Context, imageSource string) (Upload, error) {
	imageSource = strings.TrimSpace(imageSource)
	if imageSource == "" {
		return Upload{}, fmt.Errorf("empty image source")
	}

	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if c.folder != "" {
		params["folder"] = c.folder
	}
	signature := c.sign(params)

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		fields := map[string]string{
			"file":      imageSource,
			"api_key":   c.apiKey,
			"signature": signature,
		}
		for name, value := range params {
			fields[name] = value
		}
		for name, value := range fields {
			if err := writer.WriteField(name, value); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", name, err))
				return
			}
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		_ = pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		return Upload{}, fmt.Errorf("build cloudinary upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("cloudinary upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return Upload{}, fmt.Errorf("read cloudinary response: %w", err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Upload{}, fmt.Errorf("decode cloudinary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return Upload{}, fmt.Errorf("cloudinary upload failed: %s", parsed.Error.Message)
		}
		return Upload{}, fmt.Errorf("cloudinary upload failed with status %d", resp.StatusCode)
	}
	if parsed.SecureURL == "" {
		return Upload{}, fmt.Errorf("cloudinary response missing secure_url")
	}

	return Upload{URL: parsed.SecureURL, PublicID: parsed.PublicID}, nil
}

// sign builds the API signature: sorted params joined with '&', then the
// secret, hashed with SHA-1 as the upload API requires.
func (c *Cloudinary) sign(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+params[name])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}
