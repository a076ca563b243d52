// Package upload sends local images to the search service and resolves the
// server-side path later used by searches.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/visual-search/internal/utils"
	"github.com/menta2k/visual-search/pkg/processing"
	"github.com/menta2k/visual-search/pkg/types"
)

const (
	// FieldName is the multipart field carrying the image
	FieldName = "image"
	// FileName is the constant file name sent with every upload
	FileName = "photo.jpg"
)

// Config describes the upload endpoint
type Config struct {
	// Endpoint is the full upload URL, e.g. http://host:8000/upload/
	Endpoint string
	// MediaRoot is the URL prefix stripped from image_url to obtain the server path
	MediaRoot string
	Timeout   time.Duration
}

// Client uploads images to the search service
type Client struct {
	config     Config
	httpClient *http.Client
	processor  *processing.Processor
	logger     *zap.Logger
}

type uploadResponse struct {
	ImageURL  string `json:"image_url"`
	ImagePath string `json:"image_path"`
}

// NewClient creates an upload client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid upload endpoint: %v", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		processor:  processing.NewProcessor(),
		logger:     logger,
	}, nil
}

// WithHTTPClient replaces the HTTP client used for uploads
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Upload performs a single multipart POST of image. Every failure wraps
// types.ErrUploadFailed; nothing is retried.
func (c *Client) Upload(ctx context.Context, image types.CapturedImage) (types.UploadedImage, error) {
	data, contentType, err := c.processor.ReadForUpload(image.LocalURI)
	if err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: failed to read %s: %w", types.ErrUploadFailed, image.LocalURI, err)
	}

	body, formType, err := buildForm(data, contentType)
	if err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: failed to build form: %v", types.ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: failed to create request: %v", types.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", formType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: failed to send request: %w", types.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: failed to read response: %v", types.ErrUploadFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.UploadedImage{}, fmt.Errorf("%w: HTTP error! Status: %d", types.ErrUploadFailed, resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: failed to parse response: %v", types.ErrUploadFailed, err)
	}
	if parsed.ImageURL == "" {
		return types.UploadedImage{}, fmt.Errorf("%w: response has no image_url", types.ErrUploadFailed)
	}

	serverPath, err := ResolveServerPath(parsed.ImageURL, parsed.ImagePath, c.config.MediaRoot)
	if err != nil {
		return types.UploadedImage{}, fmt.Errorf("%w: %w", types.ErrUploadFailed, err)
	}

	c.logger.Info("image uploaded",
		zap.String("local_uri", image.LocalURI),
		zap.String("image_url", parsed.ImageURL),
		zap.String("server_path", serverPath),
		zap.String("size", utils.FormatFileSize(int64(len(data)))),
		zap.Duration("took", time.Since(start)))

	return types.UploadedImage{RemoteURL: parsed.ImageURL, ServerPath: serverPath}, nil
}

// ResolveServerPath prefers the canonical path reported by the server and
// otherwise strips mediaRoot from imageURL. A missing prefix or an empty
// remainder is types.ErrInvalidServerPath; the full URL is never used.
func ResolveServerPath(imageURL, imagePath, mediaRoot string) (string, error) {
	if p := strings.TrimLeft(imagePath, "/"); p != "" {
		return p, nil
	}
	if mediaRoot == "" {
		return "", fmt.Errorf("%w: no media root configured for %s", types.ErrInvalidServerPath, imageURL)
	}
	rest, found := strings.CutPrefix(imageURL, mediaRoot)
	if !found {
		return "", fmt.Errorf("%w: %s does not start with %s", types.ErrInvalidServerPath, imageURL, mediaRoot)
	}
	if rest == "" {
		return "", fmt.Errorf("%w: %s names the media root itself", types.ErrInvalidServerPath, imageURL)
	}
	return rest, nil
}

func buildForm(data []byte, contentType string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, FileName))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
