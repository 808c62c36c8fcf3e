package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/resilience"
)

const (
	errorBodyLimit    = 2048
	maxResponseBytes  = 32 << 20
	defaultUploadType = "application/octet-stream"
)

func (c *Client) postJSON(ctx context.Context, path, operation string, payload any) (*domain.ForwardResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, operation)
}

// postMultipart streams the form through a pipe so archives are never
// buffered in memory.
func (c *Client) postMultipart(ctx context.Context, path, operation string, write func(*multipart.Writer) error) (*domain.ForwardResult, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		err := write(mw)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.do(req, operation)
}

func (c *Client) do(req *http.Request, operation string) (*domain.ForwardResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(operation, resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(operation, err)
	}
	if !json.Valid(raw) {
		return nil, &domain.ForwardingError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    "response body is not valid JSON",
		}
	}
	return &domain.ForwardResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        json.RawMessage(raw),
	}, nil
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &domain.ForwardingError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

func transportError(operation string, err error) error {
	return &domain.ForwardingError{
		Operation: operation,
		Message:   err.Error(),
		Timeout:   isTimeout(err),
		Err:       err,
	}
}

// normalizeError folds whatever escaped the request path into the
// ForwardingError channel. Validation errors pass through untouched.
func normalizeError(operation string, err error) error {
	if _, ok := domain.AsForwardingError(err); ok {
		return err
	}
	if _, ok := domain.AsValidationError(err); ok {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return &domain.ForwardingError{
			Operation: operation,
			Message:   "classifier temporarily unavailable: " + err.Error(),
			Err:       err,
		}
	}
	return transportError(operation, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeFilePart keeps the caller's content type; CreateFormFile would
// always send application/octet-stream.
func writeFilePart(mw *multipart.Writer, field string, upload domain.Upload) error {
	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = defaultUploadType
	}
	filename := upload.Filename
	if filename == "" {
		filename = "dataset.zip"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, upload.Body); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}
