package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStorage is an in-memory backend used in tests and by callers that
// embed the pipeline without a durable backend. It honors the same
// contracts as the real backends, including idempotent Delete.
type MemoryStorage struct {
	PublicURL string

	mu      sync.Mutex
	objects map[string][]byte

	// FailSaves and FailDeletes simulate an unreachable backend.
	FailSaves   bool
	FailDeletes bool

	saves int
}

func NewMemoryStorage(publicURL string) *MemoryStorage {
	return &MemoryStorage{
		PublicURL: strings.TrimRight(publicURL, "/"),
		objects:   make(map[string][]byte),
	}
}

func (s *MemoryStorage) Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	if s.FailSaves {
		return "", fmt.Errorf("memory storage: saves disabled")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = b
	s.saves++
	s.mu.Unlock()
	return s.GetURL(key), nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	b, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memory storage: %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemoryStorage) GetURL(key string) string {
	if s.PublicURL == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.PublicURL, key)
}

func (s *MemoryStorage) KeyFromURL(url string) (string, bool) {
	if s.PublicURL != "" && strings.HasPrefix(url, s.PublicURL+"/") {
		return strings.TrimPrefix(url, s.PublicURL+"/"), true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return url, true
}

func (s *MemoryStorage) Delete(ctx context.Context, keyOrURL string) error {
	if s.FailDeletes {
		return fmt.Errorf("memory storage: deletes disabled")
	}
	key, ok := s.KeyFromURL(keyOrURL)
	if !ok {
		return fmt.Errorf("url %q does not belong to memory storage", keyOrURL)
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.objects[key]
	s.mu.Unlock()
	return ok, nil
}

// SaveCount reports how many successful writes have happened; tests use it
// to assert that rejected batches never touched the backend.
func (s *MemoryStorage) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Keys returns the stored keys, for test assertions.
func (s *MemoryStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
