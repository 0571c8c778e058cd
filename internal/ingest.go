package internal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// IngestRequest is one upload batch: 1..N files, an optional folder and an
// optional poster still. The poster only applies when the batch is a single
// video file.
type IngestRequest struct {
	Folder string
	Files  []UploadFile
	Poster *UploadFile
}

// Ingest validates the whole batch up front, then processes files one at a
// time: each file finishes its full variant ladder before the next starts,
// bounding peak memory to one decoded image plus its variant buffers.
// Validation rejects the batch before any storage write happens.
func (app *App) Ingest(ctx context.Context, req IngestRequest) ([]MediaRecord, error) {
	if err := app.ValidateBatch(req.Files); err != nil {
		return nil, err
	}
	if req.Poster != nil {
		if t, ok := MediaTypeFor(req.Poster.Mime); !ok || t != MediaTypeImage {
			return nil, fmt.Errorf("%w: poster must be a still image, got %s", ErrUnsupportedType, req.Poster.Mime)
		}
		if int64(len(req.Poster.Data)) > app.MaxUploadBytes {
			return nil, fmt.Errorf("%w: poster is %d bytes, limit is %d", ErrFileTooLarge, len(req.Poster.Data), app.MaxUploadBytes)
		}
	}

	records := make([]MediaRecord, 0, len(req.Files))
	for i, f := range req.Files {
		var poster *UploadFile
		if i == 0 && len(req.Files) == 1 {
			poster = req.Poster
		}

		rec, err := app.ingestFile(ctx, req.Folder, f, poster)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", f.Name, err)
		}
		records = append(records, *rec)
	}

	return records, nil
}

// ingestFile writes the original and every derived artifact for one file,
// then persists and returns the record. No partial record survives a
// failure; bytes already written are reclaimed best-effort (a leftover
// object is an acceptable leak, a dangling record is not).
func (app *App) ingestFile(ctx context.Context, folder string, f UploadFile, poster *UploadFile) (*MediaRecord, error) {
	mediaType, _ := MediaTypeFor(f.Mime) // batch already validated
	keyBase := BuildKeyBase(folder)

	written := make([]string, 0, 2*len(VariantLadder)+1)
	fail := func(err error) (*MediaRecord, error) {
		app.discardObjects(keyBase, written)
		return nil, err
	}

	originalKey := fmt.Sprintf("%s/original%s", keyBase, originalExt[f.Mime])
	saveStart := time.Now()
	originalURL, err := app.Storage.Save(ctx, originalKey, bytes.NewReader(f.Data), int64(len(f.Data)), f.Mime)
	if err != nil {
		return fail(fmt.Errorf("failed to store original: %w", err))
	}
	StorageOpDuration.WithLabelValues("save").Observe(time.Since(saveStart).Seconds())
	written = append(written, originalKey)

	rec := &MediaRecord{
		Type:        mediaType,
		Folder:      SanitizeFolder(folder),
		OriginalURL: originalURL,
		Mime:        f.Mime,
		Size:        int64(len(f.Data)),
	}

	switch mediaType {
	case MediaTypeImage:
		variants, width, height, err := app.GenerateVariants(ctx, keyBase, "", f.Data)
		if err != nil {
			return fail(err)
		}
		rec.Image = &ImageVariantSet{Variants: variants}
		rec.Width = width
		rec.Height = height
		for _, spec := range VariantLadder {
			written = append(written, fmt.Sprintf("%s/%s.jpg", keyBase, spec.Name))
		}

	case MediaTypeVideo:
		rec.Video = &VideoVariantSet{}
		if poster != nil {
			posterVariants, _, _, err := app.GenerateVariants(ctx, keyBase, "poster-", poster.Data)
			if err != nil {
				return fail(err)
			}
			rec.Video.Poster = posterVariants
			rec.PosterURL = BestVariantURL(posterVariants)
			for _, spec := range VariantLadder {
				written = append(written, fmt.Sprintf("%s/poster-%s.jpg", keyBase, spec.Name))
			}
		}
	}

	if err := app.InsertMedia(ctx, rec); err != nil {
		return fail(fmt.Errorf("failed to persist media record: %w", err))
	}

	UploadsTotal.WithLabelValues(string(mediaType)).Inc()
	UploadedBytes.Add(float64(rec.Size))
	slog.Debug("ingested file", "func", "ingestFile", "id", rec.ID, "type", rec.Type, "keyBase", keyBase, "size", rec.Size)

	return rec, nil
}

// discardObjects tries to reclaim objects written before a failed ingest.
// Errors are only logged; the reconciliation sweep picks up anything left.
func (app *App) discardObjects(keyBase string, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := app.Storage.Delete(ctx, key); err != nil {
			slog.Warn("failed to reclaim object after aborted ingest", "func", "discardObjects", "keyBase", keyBase, "objectKey", key, "err", err)
		}
	}
}
