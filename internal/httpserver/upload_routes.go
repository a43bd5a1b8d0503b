package httpserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mchat/internal/config"
	"mchat/internal/domain"
)

// UploadRoutes returns the sub-router mounted at /api/uploads:
// POST /            -> store a multipart file under a random name
// GET  /{filename}  -> serve a previously uploaded file
func UploadRoutes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(cfg.MaxUploadSize); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		defer file.Close()

		// Random filename; only the original extension is kept.
		filename := uuid.NewString() + filepath.Ext(header.Filename)
		destPath := filepath.Join(cfg.UploadDir, filename)

		out, err := os.Create(destPath)
		if err != nil {
			writeError(w, err)
			return
		}
		defer out.Close()

		if _, err := io.Copy(out, file); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"file_path": "/api/uploads/" + filename,
			"file_type": header.Header.Get("Content-Type"),
			"filename":  filename,
		})
	})

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		// Reject anything that is not a bare filename.
		if filename == "" || filepath.Base(filename) != filename {
			writeError(w, domain.ErrInvalidInput)
			return
		}
		path := filepath.Join(cfg.UploadDir, filename)
		if _, err := os.Stat(path); err != nil {
			writeError(w, domain.ErrNotFound)
			return
		}
		http.ServeFile(w, r, path)
	})

	return r
}
