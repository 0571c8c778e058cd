package internal

import (
	"errors"
	"fmt"
)

// Validation failures are rejected before any bytes are processed or
// written; they are caller errors, never retried.
var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrFileTooLarge    = errors.New("file exceeds the maximum upload size")
	ErrTooManyFiles    = errors.New("too many files in one batch")
	ErrEmptyBatch      = errors.New("no files supplied")
)

// ErrProcessing wraps decode/encode failures. Handlers report it to callers
// as a generic processing error without internal detail.
var ErrProcessing = errors.New("could not process media")

// acceptedTypes is the fixed whitelist of upload MIME types.
var acceptedTypes = map[string]MediaType{
	"image/jpeg": MediaTypeImage,
	"image/png":  MediaTypeImage,
	"image/webp": MediaTypeImage,
	"video/mp4":  MediaTypeVideo,
}

// originalExt maps an accepted MIME type to the extension used for the
// unmodified original object.
var originalExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

// MediaTypeFor returns the record type for a MIME type, or false when the
// type is not whitelisted.
func MediaTypeFor(mime string) (MediaType, bool) {
	t, ok := acceptedTypes[mime]
	return t, ok
}

// UploadFile is one file of an ingest batch, held in memory.
type UploadFile struct {
	Name string
	Mime string
	Data []byte
}

// ValidateBatch enforces the whitelist and the configured ceilings for a
// whole batch. One bad file rejects everything, before any I/O.
func (app *App) ValidateBatch(files []UploadFile) error {
	if len(files) == 0 {
		return ErrEmptyBatch
	}
	if len(files) > app.MaxFilesPerBatch {
		return fmt.Errorf("%w: got %d, limit is %d", ErrTooManyFiles, len(files), app.MaxFilesPerBatch)
	}
	for _, f := range files {
		if _, ok := MediaTypeFor(f.Mime); !ok {
			return fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, f.Mime, f.Name)
		}
		if int64(len(f.Data)) > app.MaxUploadBytes {
			return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, f.Name, len(f.Data), app.MaxUploadBytes)
		}
	}
	return nil
}

// IsValidationError reports whether err belongs to the validation taxonomy
// (reported verbatim to callers with a 4xx status).
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrTooManyFiles) ||
		errors.Is(err, ErrEmptyBatch)
}
