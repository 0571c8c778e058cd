package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"media-ingest-server/internal/storage"
)

func TestIngestImage(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	src := makeJPEG(t, 2000, 1500)
	records, err := app.Ingest(ctx, IngestRequest{
		Folder: "services",
		Files:  []UploadFile{{Name: "photo.jpg", Mime: "image/jpeg", Data: src}},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.Type != MediaTypeImage {
		t.Errorf("expected type image, got %s", rec.Type)
	}
	if rec.ID == "" {
		t.Error("expected record id to be assigned")
	}
	if rec.Width != 2000 || rec.Height != 1500 {
		t.Errorf("expected 2000x1500, got %dx%d", rec.Width, rec.Height)
	}
	if rec.Size != int64(len(src)) {
		t.Errorf("expected size %d, got %d", len(src), rec.Size)
	}
	if !strings.Contains(rec.OriginalURL, "services/") || !strings.HasSuffix(rec.OriginalURL, ".jpg") {
		t.Errorf("unexpected original url %q", rec.OriginalURL)
	}
	if rec.Image == nil || rec.Video != nil {
		t.Fatal("expected image variant set and no video set")
	}
	if len(rec.Image.Variants) != len(VariantLadder) {
		t.Errorf("expected %d variants, got %d", len(VariantLadder), len(rec.Image.Variants))
	}

	// Original bytes must round-trip untouched.
	key, ok := store.KeyFromURL(rec.OriginalURL)
	if !ok {
		t.Fatalf("original url %q does not resolve", rec.OriginalURL)
	}
	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("original object missing: %v", err)
	}
	stored, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(stored, src) {
		t.Error("stored original differs from uploaded bytes")
	}

	// Every referenced URL corresponds to a confirmed write.
	for _, url := range ObjectURLs(&rec) {
		k, _ := store.KeyFromURL(url)
		exists, _ := store.Exists(ctx, k)
		if !exists {
			t.Errorf("record references %q but no object exists", url)
		}
	}

	// Record is persisted.
	got, err := app.GetMedia(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("record not found after ingest: %v", err)
	}
	if got.OriginalURL != rec.OriginalURL {
		t.Errorf("persisted record differs: %q vs %q", got.OriginalURL, rec.OriginalURL)
	}
}

func TestIngestWebp(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	src := makeWEBP(t)
	records, err := app.Ingest(ctx, IngestRequest{
		Folder: "icons",
		Files:  []UploadFile{{Name: "icon.webp", Mime: "image/webp", Data: src}},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	rec := records[0]
	if rec.Type != MediaTypeImage {
		t.Errorf("expected type image, got %s", rec.Type)
	}
	if rec.Width != 64 || rec.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", rec.Width, rec.Height)
	}
	if !strings.HasSuffix(rec.OriginalURL, ".webp") {
		t.Errorf("original must keep its format, got %q", rec.OriginalURL)
	}
	if rec.Image == nil || len(rec.Image.Variants) != len(VariantLadder) {
		t.Fatalf("expected a full variant ladder, got %+v", rec.Image)
	}

	// Variants are JPEG re-encodes and never upscaled past the source.
	for name, url := range rec.Image.Variants {
		if !strings.HasSuffix(url, "/"+name+".jpg") {
			t.Errorf("variant %s has unexpected url %q", name, url)
		}
		key, _ := store.KeyFromURL(url)
		rc, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("variant %s missing: %v", name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		_, w, h, err := DecodeImage(data)
		if err != nil {
			t.Fatalf("variant %s not decodable: %v", name, err)
		}
		if w != 64 || h != 48 {
			t.Errorf("variant %s was upscaled to %dx%d", name, w, h)
		}
	}
}

// Switching the backend must not change the record shape: the same upload
// through the filesystem backend yields the same field set, and every URL
// on the record resolves to a present object.
func TestIngestLocalBackend(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "media.db"), DatabaseConfig{})
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("failed to init local storage: %v", err)
	}
	app := NewApp(db, store, UploadConfig{MaxUploadBytes: 20 * 1024 * 1024, MaxFilesPerBatch: 10})
	ctx := context.Background()

	src := makeJPEG(t, 2000, 1500)
	records, err := app.Ingest(ctx, IngestRequest{
		Folder: "services",
		Files:  []UploadFile{{Name: "photo.jpg", Mime: "image/jpeg", Data: src}},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	rec := records[0]
	if rec.Type != MediaTypeImage || rec.ID == "" {
		t.Errorf("unexpected record shape: %+v", rec)
	}
	if rec.Width != 2000 || rec.Height != 1500 || rec.Size != int64(len(src)) {
		t.Errorf("expected 2000x1500/%d bytes, got %dx%d/%d", len(src), rec.Width, rec.Height, rec.Size)
	}
	if rec.Image == nil || len(rec.Image.Variants) != len(VariantLadder) {
		t.Fatalf("expected a full variant ladder, got %+v", rec.Image)
	}
	if !strings.HasPrefix(rec.OriginalURL, "http://localhost:8080/files/services/") {
		t.Errorf("unexpected original url %q", rec.OriginalURL)
	}

	for _, url := range ObjectURLs(&rec) {
		key, ok := store.KeyFromURL(url)
		if !ok {
			t.Fatalf("url %q does not resolve to a key", url)
		}
		exists, err := store.Exists(ctx, key)
		if err != nil || !exists {
			t.Errorf("record references %q but no file exists: %v", url, err)
		}
	}

	// Tear-down works the same way against the filesystem.
	receipt, err := app.DeleteMediaObjects(ctx, &rec)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if receipt.Removed != 1+len(VariantLadder) {
		t.Errorf("expected %d removals, got %d", 1+len(VariantLadder), receipt.Removed)
	}
	for _, url := range ObjectURLs(&rec) {
		key, _ := store.KeyFromURL(url)
		if exists, _ := store.Exists(ctx, key); exists {
			t.Errorf("file %q still present after delete", url)
		}
	}
}

func TestIngestRejectsOversizedBatch(t *testing.T) {
	app, store := setupTestApp(t)
	app.MaxUploadBytes = 20 * 1024 * 1024

	// 50MB file against a 20MB ceiling: validation error, zero writes.
	big := UploadFile{Name: "big.jpg", Mime: "image/jpeg", Data: make([]byte, 50*1024*1024)}
	_, err := app.Ingest(context.Background(), IngestRequest{Files: []UploadFile{big}})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if store.SaveCount() != 0 {
		t.Errorf("expected zero storage writes, got %d", store.SaveCount())
	}
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	app, store := setupTestApp(t)

	_, err := app.Ingest(context.Background(), IngestRequest{
		Files: []UploadFile{{Name: "doc.pdf", Mime: "application/pdf", Data: []byte("%PDF")}},
	})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if store.SaveCount() != 0 {
		t.Errorf("expected zero storage writes, got %d", store.SaveCount())
	}
}

func TestIngestVideoWithPoster(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	poster := UploadFile{Name: "poster.jpg", Mime: "image/jpeg", Data: makeJPEG(t, 1920, 1080)}
	records, err := app.Ingest(ctx, IngestRequest{
		Folder: "clips",
		Files:  []UploadFile{{Name: "clip.mp4", Mime: "video/mp4", Data: []byte("fake mp4 payload")}},
		Poster: &poster,
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	rec := records[0]
	if rec.Type != MediaTypeVideo {
		t.Errorf("expected type video, got %s", rec.Type)
	}
	if rec.Video == nil || rec.Image != nil {
		t.Fatal("expected video variant set and no image set")
	}
	if len(rec.Video.Poster) != len(VariantLadder) {
		t.Errorf("expected %d poster variants, got %d", len(VariantLadder), len(rec.Video.Poster))
	}
	if rec.PosterURL == "" {
		t.Fatal("expected posterUrl to be set")
	}
	if rec.PosterURL != rec.Video.Poster["lg"] {
		t.Errorf("expected posterUrl %q to equal lg poster %q", rec.PosterURL, rec.Video.Poster["lg"])
	}
	if !strings.HasSuffix(rec.OriginalURL, ".mp4") {
		t.Errorf("unexpected original url %q", rec.OriginalURL)
	}

	key, _ := store.KeyFromURL(rec.PosterURL)
	if exists, _ := store.Exists(ctx, key); !exists {
		t.Error("posterUrl references a missing object")
	}
}

func TestIngestVideoWithoutPoster(t *testing.T) {
	app, _ := setupTestApp(t)

	records, err := app.Ingest(context.Background(), IngestRequest{
		Files: []UploadFile{{Name: "clip.mp4", Mime: "video/mp4", Data: []byte("fake mp4 payload")}},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	rec := records[0]
	if rec.PosterURL != "" {
		t.Errorf("expected empty posterUrl, got %q", rec.PosterURL)
	}
	if rec.Video == nil || len(rec.Video.Poster) != 0 {
		t.Error("expected empty poster ladder")
	}
}

func TestIngestPosterIgnoredForMultiFileBatch(t *testing.T) {
	app, _ := setupTestApp(t)

	poster := UploadFile{Name: "poster.jpg", Mime: "image/jpeg", Data: makeJPEG(t, 640, 480)}
	records, err := app.Ingest(context.Background(), IngestRequest{
		Files: []UploadFile{
			{Name: "a.mp4", Mime: "video/mp4", Data: []byte("one")},
			{Name: "b.mp4", Mime: "video/mp4", Data: []byte("two")},
		},
		Poster: &poster,
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	for _, rec := range records {
		if rec.PosterURL != "" {
			t.Errorf("poster should only apply to single-file uploads, got %q", rec.PosterURL)
		}
	}
}

func TestIngestProcessingFailureLeavesNoRecord(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	// Declared as JPEG but not decodable: original write succeeds, ladder
	// fails, record must not exist and written objects are reclaimed.
	_, err := app.Ingest(ctx, IngestRequest{
		Files: []UploadFile{{Name: "broken.jpg", Mime: "image/jpeg", Data: []byte("garbage")}},
	})
	if !errors.Is(err, ErrProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}

	page, err := app.ListMedia(ctx, MediaFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expected no records after failed ingest, got %d", page.Total)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("expected aborted ingest to reclaim objects, found %v", keys)
	}
}

func TestIngestPersistFailureReclaimsPosterObjects(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	// Closing the database makes the final persist step fail after the
	// original and the whole poster ladder have been written; the aborted
	// ingest must hand all of them back.
	app.DB.Close()

	poster := UploadFile{Name: "poster.jpg", Mime: "image/jpeg", Data: makeJPEG(t, 800, 600)}
	_, err := app.Ingest(ctx, IngestRequest{
		Files:  []UploadFile{{Name: "clip.mp4", Mime: "video/mp4", Data: []byte("payload")}},
		Poster: &poster,
	})
	if err == nil {
		t.Fatal("expected ingest to fail once the record cannot be persisted")
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("expected aborted ingest to reclaim all objects, found %v", keys)
	}
}

func TestDeleteRemovesEveryObject(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	poster := UploadFile{Name: "poster.jpg", Mime: "image/jpeg", Data: makeJPEG(t, 800, 600)}
	records, err := app.Ingest(ctx, IngestRequest{
		Files:  []UploadFile{{Name: "clip.mp4", Mime: "video/mp4", Data: []byte("payload")}},
		Poster: &poster,
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	rec := records[0]

	urls := ObjectURLs(&rec)
	if len(urls) != 1+len(VariantLadder) {
		t.Fatalf("expected %d object urls, got %d", 1+len(VariantLadder), len(urls))
	}

	receipt, err := app.DeleteMediaObjects(ctx, &rec)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if receipt.Removed != len(urls) {
		t.Errorf("expected %d removals, got %d", len(urls), receipt.Removed)
	}

	for _, url := range urls {
		key, _ := store.KeyFromURL(url)
		if exists, _ := store.Exists(ctx, key); exists {
			t.Errorf("object %q still present after delete", url)
		}
	}

	// Second delete is idempotent.
	if _, err := app.DeleteMediaObjects(ctx, &rec); err != nil {
		t.Errorf("second delete errored: %v", err)
	}
}

func TestDeleteFailurePreservesRecord(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	records, err := app.Ingest(ctx, IngestRequest{
		Files: []UploadFile{{Name: "p.jpg", Mime: "image/jpeg", Data: makeJPEG(t, 640, 480)}},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	rec := records[0]

	store.FailDeletes = true
	if _, err := app.DeleteMediaObjects(ctx, &rec); err == nil {
		t.Fatal("expected delete to fail while backend is unreachable")
	}

	// The record must still be fetchable; the row was never dropped.
	got, err := app.GetMedia(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("record should survive failed delete: %v", err)
	}

	// Once the backend recovers, a retry succeeds.
	store.FailDeletes = false
	receipt, err := app.DeleteMediaObjects(ctx, &rec)
	if err != nil {
		t.Fatalf("retry delete failed: %v", err)
	}
	if err := app.DeleteMediaRow(ctx, receipt.ID); err != nil {
		t.Fatalf("failed to drop metadata row: %v", err)
	}
	if got, _ := app.GetMedia(ctx, rec.ID); got != nil {
		t.Error("record still present after completed delete")
	}
}

func TestObjectURLsDeduplicatesPoster(t *testing.T) {
	rec := &MediaRecord{
		Type:        MediaTypeVideo,
		OriginalURL: "http://cdn.test/x/original.mp4",
		Video: &VideoVariantSet{Poster: map[string]string{
			"thumb": "http://cdn.test/x/poster-thumb.jpg",
			"lg":    "http://cdn.test/x/poster-lg.jpg",
		}},
		PosterURL: "http://cdn.test/x/poster-lg.jpg",
	}

	urls := ObjectURLs(rec)
	if len(urls) != 3 {
		t.Errorf("expected 3 unique urls, got %d: %v", len(urls), urls)
	}
}
