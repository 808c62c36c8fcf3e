package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const (
	multipartOverhead = 1 << 20
	maxMemoryForm     = 32 << 20
)

// requestBodyLimit is files*perFile plus multipart framing, saturating at
// math.MaxInt64 instead of wrapping negative.
func requestBodyLimit(files int, perFile int64) int64 {
	if files <= 0 || perFile <= 0 {
		return multipartOverhead
	}
	if perFile > (math.MaxInt64-multipartOverhead)/int64(files) {
		return math.MaxInt64
	}
	return int64(files)*perFile + multipartOverhead
}

// uploadClassify relays a single archive to the classification endpoint and
// returns the classifier's JSON unchanged.
func (rt *Router) uploadClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit(1, rt.limits.MaxFileBytes))

	file, header, err := r.FormFile("file")
	if err != nil {
		rt.writeFormError(w, r, err, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	result, err := rt.forwarder.Classify(r.Context(), uploadFromPart(file, header))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeForwardResult(w, result)
}

func (rt *Router) uploadDescription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, multipartOverhead)

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.forwarder.AnalyzeDescription(r.Context(), req.Description)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeForwardResult(w, result)
}

// uploadEvaluate accepts the archive under "files" or "file". Missing parts
// are rejected by the forwarder before any downstream call.
func (rt *Router) uploadEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit(1, rt.limits.MaxFileBytes))
	if err := r.ParseMultipartForm(maxMemoryForm); err != nil {
		rt.writeFormError(w, r, err, "multipart form is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var upload domain.Upload
	if headers := formFiles(r.MultipartForm); len(headers) > 0 {
		file, err := headers[0].Open()
		if err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "open upload", err))
			return
		}
		defer file.Close()
		upload = uploadFromPart(file, headers[0])
	}

	result, err := rt.forwarder.Evaluate(r.Context(), upload, r.FormValue("description"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeForwardResult(w, result)
}

func (rt *Router) writeFormError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		rt.writeError(w, r, domain.NewValidationError(domain.ReasonFileTooLarge, "", "upload exceeds the size limit"))
		return
	}
	rt.writeError(w, r, domain.NewValidationError(domain.ReasonMissingFile, "", message))
}

func uploadFromPart(file io.Reader, header *multipart.FileHeader) domain.Upload {
	return domain.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
}

func formFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	out := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["file"]))
	out = append(out, form.File["files"]...)
	out = append(out, form.File["file"]...)
	return out
}

func writeForwardResult(w http.ResponseWriter, result *domain.ForwardResult) {
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(result.Body)
}
