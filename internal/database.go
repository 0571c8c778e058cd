package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string, config DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Set defaults if not provided in config
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeoutMS == 0 {
		config.BusyTimeoutMS = 5000
	}
	if config.Synchronous == "" {
		config.Synchronous = "NORMAL"
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s;", config.JournalMode),
		fmt.Sprintf("PRAGMA busy_timeout=%d;", config.BusyTimeoutMS),
		fmt.Sprintf("PRAGMA synchronous=%s;", config.Synchronous),
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma '%s': %w", pragma, err)
		}
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS media (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		folder TEXT NOT NULL DEFAULT '',
		original_url TEXT NOT NULL,
		image_variants TEXT NOT NULL DEFAULT '',
		poster_variants TEXT NOT NULL DEFAULT '',
		poster_url TEXT NOT NULL DEFAULT '',
		mime TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	`)
	if err != nil {
		return nil, fmt.Errorf("error creating media table: %w", err)
	}

	_, err = db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_media_type_folder ON media (type, folder);
	`)
	if err != nil {
		return nil, fmt.Errorf("error creating media index: %w", err)
	}

	// Connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// InsertMedia persists a fully assembled record. The metadata store assigns
// the id and creation time, never the pipeline.
func (a *App) InsertMedia(ctx context.Context, rec *MediaRecord) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	var imageVariants, posterVariants string
	if rec.Image != nil {
		b, err := json.Marshal(rec.Image.Variants)
		if err != nil {
			return err
		}
		imageVariants = string(b)
	}
	if rec.Video != nil && len(rec.Video.Poster) > 0 {
		b, err := json.Marshal(rec.Video.Poster)
		if err != nil {
			return err
		}
		posterVariants = string(b)
	}

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO media (id, type, folder, original_url, image_variants, poster_variants, poster_url, mime, size, width, height, duration, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Type), rec.Folder, rec.OriginalURL, imageVariants, posterVariants, rec.PosterURL, rec.Mime, rec.Size, rec.Width, rec.Height, rec.Duration, rec.CreatedAt.Unix())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func scanMedia(scan func(dest ...any) error) (*MediaRecord, error) {
	var rec MediaRecord
	var typ, imageVariants, posterVariants string
	var createdAt int64
	err := scan(&rec.ID, &typ, &rec.Folder, &rec.OriginalURL, &imageVariants, &posterVariants, &rec.PosterURL, &rec.Mime, &rec.Size, &rec.Width, &rec.Height, &rec.Duration, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.Type = MediaType(typ)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()

	switch rec.Type {
	case MediaTypeImage:
		rec.Image = &ImageVariantSet{Variants: map[string]string{}}
		if imageVariants != "" {
			if err := json.Unmarshal([]byte(imageVariants), &rec.Image.Variants); err != nil {
				return nil, fmt.Errorf("corrupt image variants for %s: %w", rec.ID, err)
			}
		}
	case MediaTypeVideo:
		rec.Video = &VideoVariantSet{}
		if posterVariants != "" {
			rec.Video.Poster = map[string]string{}
			if err := json.Unmarshal([]byte(posterVariants), &rec.Video.Poster); err != nil {
				return nil, fmt.Errorf("corrupt poster variants for %s: %w", rec.ID, err)
			}
		}
	}

	return &rec, nil
}

const mediaColumns = "id, type, folder, original_url, image_variants, poster_variants, poster_url, mime, size, width, height, duration, created_at"

// GetMedia returns the record with the given id.
// Returns nil, nil if no record is found.
func (a *App) GetMedia(ctx context.Context, id string) (*MediaRecord, error) {
	row := a.DB.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media WHERE id = ?", id)
	rec, err := scanMedia(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteMediaRow drops the metadata row. Callers must hold a Deleted receipt
// from the deletion orchestrator first.
func (a *App) DeleteMediaRow(ctx context.Context, id string) error {
	_, err := a.DB.ExecContext(ctx, "DELETE FROM media WHERE id = ?", id)
	return err
}

// ListMedia returns one page of records matching the filter, newest first,
// along with the total match count.
func (a *App) ListMedia(ctx context.Context, filter MediaFilter) (*MediaPage, error) {
	var where []string
	var args []any

	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Folder != "" {
		where = append(where, "folder = ?")
		args = append(args, SanitizeFolder(filter.Folder))
	}
	if filter.Query != "" {
		where = append(where, "(folder LIKE ? OR original_url LIKE ?)")
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := a.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM media"+clause, args...).Scan(&total); err != nil {
		return nil, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	rows, err := a.DB.QueryContext(ctx,
		"SELECT "+mediaColumns+" FROM media"+clause+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]MediaRecord, 0, pageSize)
	for rows.Next() {
		rec, err := scanMedia(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pageCount := (total + pageSize - 1) / pageSize

	return &MediaPage{
		Items:     items,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		PageCount: pageCount,
	}, nil
}
