package internal

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"testing"

	"media-ingest-server/internal/storage"
)

// setupTestApp creates an App backed by a file sqlite database in a temp
// dir and an in-memory storage fake.
func setupTestApp(t *testing.T) (*App, *storage.MemoryStorage) {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "media.db"), DatabaseConfig{})
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewMemoryStorage("http://cdn.test")
	app := NewApp(db, store, UploadConfig{
		MaxUploadBytes:   20 * 1024 * 1024,
		MaxFilesPerBatch: 10,
	})

	return app, store
}

// makeJPEG encodes a solid-color JPEG of the given dimensions.
func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

// makePNG encodes a solid-color PNG of the given dimensions.
func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

// webpFixture is a 64x48 solid-color lossless WEBP.
const webpFixture = "UklGRhoAAABXRUJQVlA4TA0AAAAvP8ALAKhWkevR/wIAAA=="

func makeWEBP(t *testing.T) []byte {
	t.Helper()

	data, err := base64.StdEncoding.DecodeString(webpFixture)
	if err != nil {
		t.Fatalf("failed to decode webp fixture: %v", err)
	}
	return data
}

// multipartBody builds a multipart request body with the given form files
// and an optional folder field.
func multipartBody(t *testing.T, folder string, files []UploadFile, poster *UploadFile) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if folder != "" {
		if err := writer.WriteField("folder", folder); err != nil {
			t.Fatalf("failed to write folder field: %v", err)
		}
	}

	writeFile := func(field string, f UploadFile) {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+f.Name+`"`)
		h.Set("Content-Type", f.Mime)
		part, err := writer.CreatePart(h)
		if err != nil {
			t.Fatalf("failed to create form part: %v", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			t.Fatalf("failed to write form part: %v", err)
		}
	}

	for _, f := range files {
		writeFile("files", f)
	}
	if poster != nil {
		writeFile("poster", *poster)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return body, writer.FormDataContentType()
}
