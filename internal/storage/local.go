package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type LocalStorage struct {
	BaseDir   string
	PublicURL string // Optional base URL for serving files, e.g. "http://localhost:8080/files"
}

func NewLocalStorage(baseDir string, publicURL string) (*LocalStorage, error) {
	// Ensure baseDir exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{
		BaseDir:   baseDir,
		PublicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// resolve joins key under BaseDir and rejects anything that escapes it.
func (s *LocalStorage) resolve(key string) (string, error) {
	fullPath := filepath.Join(s.BaseDir, filepath.FromSlash(key))
	base, err := filepath.Abs(s.BaseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return fullPath, nil
}

func (s *LocalStorage) Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return "", fmt.Errorf("failed to write data to %s: %w", fullPath, err)
	}

	return s.GetURL(key), nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (s *LocalStorage) GetURL(key string) string {
	if s.PublicURL != "" {
		return fmt.Sprintf("%s/%s", s.PublicURL, key)
	}
	return key
}

func (s *LocalStorage) KeyFromURL(url string) (string, bool) {
	if s.PublicURL != "" && strings.HasPrefix(url, s.PublicURL+"/") {
		return strings.TrimPrefix(url, s.PublicURL+"/"), true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return strings.TrimLeft(url, "/"), true
}

// Delete removes the object behind a key or a previously returned URL.
// A missing file is treated as already deleted.
func (s *LocalStorage) Delete(ctx context.Context, keyOrURL string) error {
	key, ok := s.KeyFromURL(keyOrURL)
	if !ok {
		return fmt.Errorf("url %q does not belong to local storage", keyOrURL)
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
