package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

const (
	maxAvatarBytes     = 5 << 20
	mirrorFetchTimeout = 10 * time.Second
)

// AvatarStore keeps user avatar images in object storage and produces
// the public URL written to the user record.
type AvatarStore struct {
	backend       ObjectStorage
	publicBaseURL string
	httpClient    *http.Client
}

// NewAvatarStore constructs an AvatarStore over the provided backend.
func NewAvatarStore(backend ObjectStorage, publicBaseURL string) *AvatarStore {
	return &AvatarStore{
		backend:       backend,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		httpClient:    &http.Client{Timeout: mirrorFetchTimeout},
	}
}

// EnsureBucket ensures the avatar bucket exists.
func (s *AvatarStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Save stores an avatar for the user and returns its public URL.
// The object key is derived from the user ID, so a new upload replaces
// the previous avatar.
func (s *AvatarStore) Save(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	if size > maxAvatarBytes {
		return "", fmt.Errorf("avatar exceeds %d bytes", maxAvatarBytes)
	}
	ext, err := extensionFor(contentType)
	if err != nil {
		return "", err
	}

	key := avatarKey(userID, ext)
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}
	return s.publicURL(key), nil
}

// Mirror downloads the provider-hosted avatar and stores a copy,
// returning the public URL of the copy. Callers treat failures as
// best-effort and keep the provider URL.
func (s *AvatarStore) Mirror(ctx context.Context, userID, remoteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch avatar: status %d", resp.StatusCode)
	}

	// ContentLength is unreliable for chunked responses, so the limit is
	// enforced on the bytes actually read.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to fetch avatar: %w", err)
	}
	if len(body) > maxAvatarBytes {
		return "", fmt.Errorf("avatar exceeds %d bytes", maxAvatarBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	return s.Save(ctx, userID, bytes.NewReader(body), int64(len(body)), contentType)
}

// Delete removes the user's stored avatar, if any.
func (s *AvatarStore) Delete(ctx context.Context, userID string) error {
	var lastErr error
	for _, ext := range []string{".png", ".jpg", ".gif", ".webp"} {
		if err := s.backend.Delete(ctx, avatarKey(userID, ext)); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *AvatarStore) publicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return path.Join(s.backend.Bucket(), key)
}

func avatarKey(userID, ext string) string {
	return "avatars/" + userID + ext
}

func extensionFor(contentType string) (string, error) {
	switch contentType {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", errors.New("unsupported avatar content type " + contentType)
	}
}
