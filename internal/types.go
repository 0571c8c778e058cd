package internal

import (
	"database/sql"
	"time"

	"media-ingest-server/internal/storage"
)

// ===== Data Models =====

// MediaType discriminates what kind of asset a record describes.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Variant ladder rungs. Every image (and every supplied video poster) gets
// one resized copy per rung, capped at the rung's width with no upscaling.
type VariantSpec struct {
	Name     string
	MaxWidth int
}

var VariantLadder = []VariantSpec{
	{Name: "thumb", MaxWidth: 320},
	{Name: "sm", MaxWidth: 640},
	{Name: "md", MaxWidth: 1024},
	{Name: "lg", MaxWidth: 1600},
}

// ImageVariantSet is the flat rung->URL mapping carried by image records.
type ImageVariantSet struct {
	Variants map[string]string `json:"variants"`
}

// VideoVariantSet carries the poster ladder for video records. Poster is
// empty when no poster still was supplied with the upload.
type VideoVariantSet struct {
	Poster map[string]string `json:"poster,omitempty"`
}

// MediaRecord is the durable description of one ingested asset. Exactly one
// of Image/Video is populated, matching Type. Every URL it carries refers to
// a write that was confirmed before the record was returned.
type MediaRecord struct {
	ID          string           `json:"id"`
	Type        MediaType        `json:"type"`
	Folder      string           `json:"folder,omitempty"`
	OriginalURL string           `json:"originalUrl"`
	Image       *ImageVariantSet `json:"image,omitempty"`
	Video       *VideoVariantSet `json:"video,omitempty"`
	PosterURL   string           `json:"posterUrl,omitempty"`
	Mime        string           `json:"mime"`
	Size        int64            `json:"size"`
	Width       int              `json:"width,omitempty"`
	Height      int              `json:"height,omitempty"`
	Duration    float64          `json:"duration,omitempty"` // reserved, currently unset
	CreatedAt   time.Time        `json:"createdAt"`
}

// MediaPage is one page of a list/query result.
type MediaPage struct {
	Items     []MediaRecord `json:"items"`
	Total     int           `json:"total"`
	Page      int           `json:"page"`
	PageSize  int           `json:"pageSize"`
	PageCount int           `json:"pageCount"`
}

// MediaFilter narrows a list/query call. Zero values mean "no filter".
type MediaFilter struct {
	Type     MediaType
	Folder   string
	Query    string // free-text over folder and original URL
	Page     int
	PageSize int
}

// Deleted is the receipt returned by the deletion orchestrator. Holding one
// proves every backend object of the record has been removed, so the caller
// may now drop the metadata row — never the other way around.
type Deleted struct {
	ID      string `json:"id"`
	Removed int    `json:"removed"`
}

// ===== Server State =====

// App holds the application-wide dependencies. The storage backend is
// chosen once per process and injected here.
type App struct {
	DB               *sql.DB
	Storage          storage.Storage
	MaxUploadBytes   int64
	MaxFilesPerBatch int
	Version          string
	BuildTime        string
}
