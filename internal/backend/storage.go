package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImageBucket is the storage bucket holding todo image attachments.
const ImageBucket = "todo-images"

const storagePrefix = "/storage/v1"

// Storage uploads objects to the backend's object store and resolves
// their public URLs.
type Storage struct {
	baseURL    string
	anonKey    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewStorage creates a storage client for the backend at baseURL.
func NewStorage(baseURL, anonKey string, tokens TokenSource) *Storage {
	return &Storage{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Upload stores the given bytes under bucket/path.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s%s/object/%s/%s", s.baseURL, storagePrefix, bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("apikey", s.anonKey)
	token := s.anonKey
	if s.tokens != nil {
		if t := s.tokens.AccessToken(); t != "" {
			token = t
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Message: fmt.Sprintf("401 uploading %s/%s", bucket, path)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf(
			"unexpected status %d uploading %s/%s: %s",
			resp.StatusCode, bucket, path, string(body),
		)
	}
	return nil
}

// PublicURL returns the unauthenticated URL of an object.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s%s/object/public/%s/%s", s.baseURL, storagePrefix, bucket, path)
}
