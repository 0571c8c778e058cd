package internal

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-ingest-server/internal/response"
	"media-ingest-server/internal/storage"
)

func NewApp(db *sql.DB, store storage.Storage, upload UploadConfig) *App {
	return &App{
		DB:               db,
		Storage:          store,
		MaxUploadBytes:   upload.MaxUploadBytes,
		MaxFilesPerBatch: upload.MaxFilesPerBatch,
	}
}

// Routes builds the HTTP surface. Every request is synchronous and bounded
// by the router timeout; callers needing non-blocking behavior queue above
// this service.
func (app *App) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthcheck", healthcheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/media", func(r chi.Router) {
		r.Post("/", app.uploadHandler)
		r.Get("/", app.listHandler)
		r.Get("/{id}", app.getHandler)
		r.Delete("/{id}", app.deleteHandler)
	})

	return r
}

func healthcheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"alive": true}`))
}

// requestLogger logs method, path, status code, and duration for every request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request handled", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "durationMs", time.Since(start).Milliseconds())
	})
}

func (app *App) uploadHandler(w http.ResponseWriter, r *http.Request) {
	processStartTime := time.Now()

	// Generous request cap; the real per-file and per-batch ceilings are
	// enforced by batch validation before anything touches storage.
	maxRequest := app.MaxUploadBytes*int64(app.MaxFilesPerBatch+1) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxRequest)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid multipart request")
		Http400Errors.Inc()
		slog.Warn("unable to parse multipart form", "func", "uploadHandler", "err", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := IngestRequest{Folder: r.FormValue("folder")}

	for _, fh := range r.MultipartForm.File["files"] {
		f, err := readFormFile(fh)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "unable to read uploaded file")
			Http400Errors.Inc()
			slog.Warn("unable to read form file", "func", "uploadHandler", "file", fh.Filename, "err", err)
			return
		}
		req.Files = append(req.Files, *f)
	}

	if posters := r.MultipartForm.File["poster"]; len(posters) > 0 {
		f, err := readFormFile(posters[0])
		if err != nil {
			response.Error(w, http.StatusBadRequest, "unable to read poster file")
			Http400Errors.Inc()
			slog.Warn("unable to read poster file", "func", "uploadHandler", "file", posters[0].Filename, "err", err)
			return
		}
		req.Poster = f
	}

	records, err := app.Ingest(r.Context(), req)
	if err != nil {
		app.writeIngestError(w, err)
		return
	}

	slog.Debug("batch ingested", "func", "uploadHandler", "files", len(records), "processingTimeMs", time.Since(processStartTime).Milliseconds())
	response.Created(w, records)
}

func readFormFile(fh *multipart.FileHeader) (*UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &UploadFile{Name: fh.Filename, Mime: fh.Header.Get("Content-Type"), Data: data}, nil
}

// writeIngestError maps the error taxonomy onto status codes: validation
// errors are reported verbatim, processing errors as a generic message
// without internal detail, storage errors as retryable.
func (app *App) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case IsValidationError(err):
		UploadErrors.WithLabelValues("validation").Inc()
		Http400Errors.Inc()
		slog.Warn("batch rejected", "func", "uploadHandler", "err", err)
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrProcessing):
		UploadErrors.WithLabelValues("processing").Inc()
		Http400Errors.Inc()
		slog.Error("media processing failed", "func", "uploadHandler", "err", err)
		response.Error(w, http.StatusUnprocessableEntity, "could not process media")
	default:
		UploadErrors.WithLabelValues("storage").Inc()
		Http500Errors.Inc()
		slog.Error("storage backend failed during ingest", "func", "uploadHandler", "err", err)
		response.Error(w, http.StatusBadGateway, "storage backend unavailable, please retry")
	}
}

func (app *App) listHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))

	filter := MediaFilter{
		Type:     MediaType(query.Get("type")),
		Folder:   query.Get("folder"),
		Query:    query.Get("q"),
		Page:     page,
		PageSize: pageSize,
	}

	if filter.Type != "" && filter.Type != MediaTypeImage && filter.Type != MediaTypeVideo {
		response.Error(w, http.StatusBadRequest, "unknown media type filter")
		Http400Errors.Inc()
		return
	}

	result, err := app.ListMedia(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "unable to list media")
		Http500Errors.Inc()
		slog.Error("unable to list media", "func", "listHandler", "err", err)
		return
	}

	response.OK(w, result)
}

func (app *App) getHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := app.GetMedia(r.Context(), id)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "unable to load media record")
		Http500Errors.Inc()
		slog.Error("unable to load media record", "func", "getHandler", "id", id, "err", err)
		return
	}
	if rec == nil {
		response.Error(w, http.StatusNotFound, "media not found")
		Http400Errors.Inc()
		return
	}

	response.OK(w, rec)
}

// deleteHandler removes every stored object first and drops the metadata
// row only after the orchestrator hands back a receipt. On storage failure
// the row is preserved so no metadata ever points at nothing.
func (app *App) deleteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	processStartTime := time.Now()

	rec, err := app.GetMedia(r.Context(), id)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "unable to load media record")
		Http500Errors.Inc()
		slog.Error("unable to load media record", "func", "deleteHandler", "id", id, "err", err)
		return
	}
	if rec == nil {
		response.Error(w, http.StatusNotFound, "media not found")
		Http400Errors.Inc()
		return
	}

	receipt, err := app.DeleteMediaObjects(r.Context(), rec)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "storage backend unavailable, record preserved, please retry")
		Http500Errors.Inc()
		slog.Error("unable to remove stored objects, keeping metadata row", "func", "deleteHandler", "id", id, "err", err)
		return
	}

	if err := app.DeleteMediaRow(r.Context(), receipt.ID); err != nil {
		// Objects are gone but the row remains; a retry re-issues idempotent
		// removals and then drops the row.
		response.Error(w, http.StatusInternalServerError, "stored objects removed but metadata not dropped, please retry")
		Http500Errors.Inc()
		slog.Error("unable to drop metadata row after storage removal", "func", "deleteHandler", "id", id, "err", err)
		return
	}

	slog.Debug("deleted media", "func", "deleteHandler", "id", id, "objects", receipt.Removed, "processingTimeMs", time.Since(processStartTime).Milliseconds())
	response.OK(w, receipt)
}
