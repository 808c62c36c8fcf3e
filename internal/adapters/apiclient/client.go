package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const maxResponseBytes = 8 << 20

// Client talks to the praxis API on behalf of praxisctl.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
	Filename   string
}

func (e *APIError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("api status %d: %s (%s)", e.StatusCode, e.Message, e.Filename)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusRequestEntityTooLarge:
		return domain.ErrInvalidInput
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrSubmissionNotFound
	case e.StatusCode == http.StatusConflict:
		return domain.ErrAlreadyResolved
	case e.StatusCode == http.StatusBadGateway || e.StatusCode == http.StatusGatewayTimeout:
		return domain.ErrForwarding
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable:
		return domain.ErrTemporary
	default:
		return nil
	}
}

func (c *Client) SubmitBatch(ctx context.Context, files []domain.BatchFile, description string) (*domain.BatchReceipt, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeBatch(mw, files, description)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/batches", pr)
	if err != nil {
		return nil, fmt.Errorf("create batch request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var receipt domain.BatchReceipt
	if err := c.do(req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/submissions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create submission request: %w", err)
	}
	var sub domain.Submission
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	return c.listFrom(ctx, "/v1/submissions")
}

func (c *Client) History(ctx context.Context, limit int) ([]domain.Submission, error) {
	path := "/v1/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.listFrom(ctx, path)
}

func (c *Client) listFrom(ctx context.Context, path string) ([]domain.Submission, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}
	var out struct {
		Submissions []domain.Submission `json:"submissions"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Submissions, nil
}

// AnalyzeDescription returns the classifier's description analysis verbatim.
func (c *Client) AnalyzeDescription(ctx context.Context, description string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return nil, fmt.Errorf("marshal description request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/description", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create description request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Await polls every id until it settles or ctx ends. onChange sees each
// status transition, including the first observation.
func (c *Client) Await(ctx context.Context, ids []string, interval time.Duration, onChange func(domain.Submission)) ([]domain.Submission, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	latest := make(map[string]domain.Submission, len(ids))
	pending := append([]string(nil), ids...)

	for {
		next := pending[:0]
		for _, id := range pending {
			sub, err := c.GetSubmission(ctx, id)
			if err != nil {
				return nil, err
			}
			if prev, seen := latest[id]; !seen || prev.Status != sub.Status {
				if onChange != nil {
					onChange(*sub)
				}
			}
			latest[id] = *sub
			if !sub.Status.Terminal() {
				next = append(next, id)
			}
		}
		pending = next
		if len(pending) == 0 {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out := make([]domain.Submission, 0, len(ids))
	for _, id := range ids {
		out = append(out, latest[id])
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "call api", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "read api response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, raw []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error    string `json:"error"`
		Reason   string `json:"reason"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Reason = body.Reason
		apiErr.Filename = body.Filename
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

// AsAPIError unwraps err into *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeBatch(mw *multipart.Writer, files []domain.BatchFile, description string) error {
	for _, f := range files {
		contentType := strings.TrimSpace(f.MimeType)
		if contentType == "" {
			contentType = "application/zip"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(f.Filename)))
		header.Set("Content-Type", contentType)

		part, err := mw.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create part for %s: %w", f.Filename, err)
		}
		if f.Body != nil {
			if _, err := io.Copy(part, f.Body); err != nil {
				return fmt.Errorf("write part for %s: %w", f.Filename, err)
			}
		}
	}
	if err := mw.WriteField("description", description); err != nil {
		return fmt.Errorf("write description field: %w", err)
	}
	return nil
}
