package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const imgbbUploadURL = "https://api.imgbb.com/1/upload"

// ErrImageHostDisabled is returned when no ImgBB key is configured.
var ErrImageHostDisabled = errors.New("image hosting is not configured")

// HostedImage describes an image stored on ImgBB.
type HostedImage struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	DisplayURL string `json:"display_url"`
	DeleteURL  string `json:"delete_url"`
}

// ImgBBService uploads local image files to ImgBB.
type ImgBBService struct {
	apiKey    string
	uploadURL string
	client    *http.Client
}

// NewImgBBService creates an ImgBB client authenticated with apiKey.
func NewImgBBService(apiKey string) *ImgBBService {
	return &ImgBBService{
		apiKey:    apiKey,
		uploadURL: imgbbUploadURL,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// WithUploadURL overrides the upload endpoint.
func (s *ImgBBService) WithUploadURL(uploadURL string) *ImgBBService {
	s.uploadURL = uploadURL
	return s
}

type imgbbResponse struct {
	Data    HostedImage `json:"data"`
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the file at path and returns where it is hosted.
func (s *ImgBBService) Upload(ctx context.Context, path string) (*HostedImage, error) {
	if s.apiKey == "" {
		return nil, ErrImageHostDisabled
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imgbb open: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("imgbb form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("imgbb form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("imgbb form: %w", err)
	}

	endpoint := s.uploadURL + "?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("imgbb request build: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imgbb upload: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var result imgbbResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("imgbb upload: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !result.Success {
		msg := http.StatusText(resp.StatusCode)
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("imgbb upload: status %d: %s", resp.StatusCode, msg)
	}

	return &result.Data, nil
}
