package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const maxBatchFiles = 32

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit(maxBatchFiles, rt.limits.MaxFileBytes))
	if err := r.ParseMultipartForm(maxMemoryForm); err != nil {
		rt.writeFormError(w, r, err, "multipart form with field 'files' is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := formFiles(r.MultipartForm)
	if len(headers) > maxBatchFiles {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "submit batch", fmt.Errorf("at most %d files per batch", maxBatchFiles)))
		return
	}

	files := make([]domain.BatchFile, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "open upload", err))
			return
		}
		closers = append(closers, file)
		files = append(files, domain.BatchFile{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
			Body:     file,
		})
	}

	receipt, err := rt.batches.SubmitBatch(r.Context(), files, r.FormValue("description"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := rt.submissions.List(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (rt *Router) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.submissions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (rt *Router) listHistory(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "list history", errors.New("result log is not configured")))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "list history", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}

	subs, err := rt.history.List(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}
