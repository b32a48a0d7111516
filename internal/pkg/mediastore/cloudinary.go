package mediastore

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bytes"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
)

// Config defines Cloudinary credentials and the base folder.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Cloudinary uploads and deletes images through the Cloudinary HTTP API
// using signed requests.
type Cloudinary struct {
	config Config
	client *http.Client
	logger zerolog.Logger
}

// NewCloudinary creates a Cloudinary media store.
func NewCloudinary(config Config, logger zerolog.Logger) (*Cloudinary, error) {
	if config.CloudName == "" || config.APIKey == "" || config.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are not configured")
	}
	return &Cloudinary{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload pushes an image to Cloudinary under the configured folder and
// the given subfolder, returning the secure URL.
func (c *Cloudinary) Upload(ctx context.Context, file io.Reader, subfolder string) (string, error) {
	publicID := uuid.New().String()
	finalPublicID := c.publicID(subfolder, publicID)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", publicID)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	_ = writer.WriteField("api_key", c.config.APIKey)
	_ = writer.WriteField("public_id", finalPublicID)
	_ = writer.WriteField("timestamp", timestamp)
	_ = writer.WriteField("signature", c.sign(finalPublicID, timestamp))
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", c.config.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrMediaUploadFailed, err.Error())
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrMediaUploadFailed, err.Error())
	}

	var parsed uploadResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrMediaUploadFailed, "unexpected upload response")
	}

	if res.StatusCode != http.StatusOK || parsed.Error.Message != "" {
		c.logger.Error().
			Int("status", res.StatusCode).
			Str("error", parsed.Error.Message).
			Msg("Cloudinary upload rejected")
		return "", apperrors.NewCustomError(apperrors.ErrMediaUploadFailed,
			fmt.Sprintf("upload rejected with status %d", res.StatusCode))
	}

	secureURL := parsed.SecureURL
	if secureURL == "" {
		secureURL = parsed.URL
	}
	if secureURL == "" {
		return "", apperrors.NewCustomError(apperrors.ErrMediaUploadFailed, "no URL in upload response")
	}

	c.logger.Debug().Str("publicId", finalPublicID).Msg("Image uploaded")
	return secureURL, nil
}

// Delete removes an image by its delivery URL. Returns false without an
// error when the URL does not look like a Cloudinary delivery URL.
func (c *Cloudinary) Delete(ctx context.Context, imageURL string) (bool, error) {
	publicID, ok := PublicIDFromURL(imageURL)
	if !ok {
		return false, nil
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	form := url.Values{}
	form.Add("public_id", publicID)
	form.Add("api_key", c.config.APIKey)
	form.Add("timestamp", timestamp)
	form.Add("signature", c.sign(publicID, timestamp))

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/destroy", c.config.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create destroy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("destroy request failed: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read destroy response: %w", err)
	}

	var parsed struct {
		Result string `json:"result"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return false, fmt.Errorf("unexpected destroy response: %w", err)
	}

	if res.StatusCode != http.StatusOK || parsed.Error.Message != "" {
		return false, fmt.Errorf("destroy rejected with status %d: %s", res.StatusCode, parsed.Error.Message)
	}

	// "not found" counts as deleted: the image is gone either way.
	deleted := parsed.Result == "ok" || parsed.Result == "not found"
	if deleted {
		c.logger.Debug().Str("publicId", publicID).Msg("Image deleted")
	}
	return deleted, nil
}

// publicID joins the configured base folder, the subfolder and the id.
func (c *Cloudinary) publicID(subfolder, id string) string {
	parts := make([]string, 0, 3)
	if c.config.Folder != "" {
		parts = append(parts, c.config.Folder)
	}
	if subfolder != "" {
		parts = append(parts, subfolder)
	}
	parts = append(parts, id)
	return strings.Join(parts, "/")
}

// sign produces the SHA1 request signature Cloudinary expects over the
// public_id and timestamp parameters.
func (c *Cloudinary) sign(publicID, timestamp string) string {
	payload := fmt.Sprintf("public_id=%s&timestamp=%s%s", publicID, timestamp, c.config.APISecret)
	return fmt.Sprintf("%x", sha1.Sum([]byte(payload)))
}

// PublicIDFromURL derives the public id from a Cloudinary delivery URL
// of the form https://res.cloudinary.com/{cloud}/image/upload/
// [v{version}/]{folder}/{id}.{ext}: everything after the upload segment
// with the version prefix and the extension stripped.
func PublicIDFromURL(imageURL string) (string, bool) {
	const marker = "/upload/"
	idx := strings.Index(imageURL, marker)
	if idx < 0 {
		return "", false
	}

	rest := strings.Trim(imageURL[idx+len(marker):], "/")
	if rest == "" {
		return "", false
	}

	segments := strings.Split(rest, "/")
	if isVersionSegment(segments[0]) {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "", false
	}

	// Strip the file extension off the final segment.
	last := segments[len(segments)-1]
	if dot := strings.LastIndex(last, "."); dot > 0 {
		segments[len(segments)-1] = last[:dot]
	}

	publicID := strings.Join(segments, "/")
	if publicID == "" {
		return "", false
	}
	return publicID, true
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
