package storage

import (
	"context"
	"io"
)

// Storage defines the interface for media object storage operations.
// A single backend is selected at startup and injected into the app;
// business logic never inspects which one it got.
type Storage interface {
	// Save writes data to the underlying storage at key and returns the
	// public URL of the stored object. The write must be confirmed before
	// the URL is returned.
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)

	// Get retrieves the object stored at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL for the given key without touching the backend.
	GetURL(key string) string

	// KeyFromURL resolves a URL previously returned by Save back to its
	// storage key. Returns false if the URL does not belong to this backend.
	KeyFromURL(url string) (string, bool)

	// Delete removes the object at key or URL. Deleting an object that is
	// already gone is not an error; genuine I/O and auth failures are.
	Delete(ctx context.Context, keyOrURL string) error

	// Exists checks whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}
