package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ObjectURLs enumerates every backend object ever created for a record: the
// original, every image variant, every nested poster variant, and the poster
// URL if it is not already covered by the poster ladder.
func ObjectURLs(rec *MediaRecord) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	add(rec.OriginalURL)
	if rec.Image != nil {
		for _, u := range rec.Image.Variants {
			add(u)
		}
	}
	if rec.Video != nil {
		for _, u := range rec.Video.Poster {
			add(u)
		}
	}
	add(rec.PosterURL)

	return urls
}

// DeleteMediaObjects removes every backend object a record references,
// fanning the removals out concurrently since they are independent and
// idempotent. It returns a Deleted receipt only when every removal
// succeeded; the caller must hold that receipt before dropping the metadata
// row. On failure the record stays referenced and a follow-up delete safely
// re-issues removals for objects that are already gone.
func (app *App) DeleteMediaObjects(ctx context.Context, rec *MediaRecord) (*Deleted, error) {
	urls := ObjectURLs(rec)

	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			deleteStart := time.Now()
			if err := app.Storage.Delete(ctx, url); err != nil {
				select {
				case errChan <- fmt.Errorf("failed to remove %s: %w", url, err):
				default:
				}
				return
			}
			StorageOpDuration.WithLabelValues("delete").Observe(time.Since(deleteStart).Seconds())
		}(url)
	}

	wg.Wait()

	select {
	case err := <-errChan:
		DeleteErrors.Inc()
		return nil, err
	default:
	}

	DeletesTotal.Inc()
	slog.Debug("removed all objects for record", "func", "DeleteMediaObjects", "id", rec.ID, "objects", len(urls))

	return &Deleted{ID: rec.ID, Removed: len(urls)}, nil
}
