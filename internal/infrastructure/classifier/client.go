package classifier

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/core/ports"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/resilience"
)

const (
	classifyPath    = "/api/classify"
	descriptionPath = "/api/description"
	evaluatePath    = "/api/evaluate"

	opClassify    = "classify"
	opDescription = "description"
	opEvaluate    = "evaluate"
)

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	// Executor guards calls with a circuit breaker. Nil means direct calls.
	Executor *resilience.Executor
	Observer ports.ForwardObserver
}

// Client relays uploads and descriptions to the classifier service and
// returns its JSON verbatim. Every failure comes back as *domain.ForwardingError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	observer   ports.ForwardObserver
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	observer := opts.Observer
	if observer == nil {
		observer = ports.NopObserver()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		executor:   opts.Executor,
		observer:   observer,
	}
}

func (c *Client) Classify(ctx context.Context, upload domain.Upload) (*domain.ForwardResult, error) {
	if upload.Body == nil {
		return nil, domain.NewValidationError(domain.ReasonMissingFile, upload.Filename, "file is required")
	}
	return c.call(ctx, opClassify, func(ctx context.Context) (*domain.ForwardResult, error) {
		return c.postMultipart(ctx, classifyPath, opClassify, func(mw *multipart.Writer) error {
			return writeFilePart(mw, "file", upload)
		})
	})
}

func (c *Client) AnalyzeDescription(ctx context.Context, description string) (*domain.ForwardResult, error) {
	payload := map[string]string{"description": description}
	return c.call(ctx, opDescription, func(ctx context.Context) (*domain.ForwardResult, error) {
		return c.postJSON(ctx, descriptionPath, opDescription, payload)
	})
}

// Evaluate sends the archive under the plural "files" field together with
// the description. Both are required before anything goes on the wire.
func (c *Client) Evaluate(ctx context.Context, upload domain.Upload, description string) (*domain.ForwardResult, error) {
	if upload.Body == nil {
		return nil, domain.NewValidationError(domain.ReasonMissingFile, upload.Filename, "file is required for evaluation")
	}
	if strings.TrimSpace(description) == "" {
		return nil, domain.NewValidationError(domain.ReasonEmptyDescription, "", "description is required for evaluation")
	}
	return c.call(ctx, opEvaluate, func(ctx context.Context) (*domain.ForwardResult, error) {
		return c.postMultipart(ctx, evaluatePath, opEvaluate, func(mw *multipart.Writer) error {
			if err := writeFilePart(mw, "files", upload); err != nil {
				return err
			}
			return mw.WriteField("description", description)
		})
	})
}

func (c *Client) call(
	ctx context.Context,
	operation string,
	fn func(context.Context) (*domain.ForwardResult, error),
) (*domain.ForwardResult, error) {
	start := time.Now()

	var result *domain.ForwardResult
	run := func(ctx context.Context) error {
		out, err := fn(ctx)
		if err != nil {
			return err
		}
		result = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "classifier."+operation, run, classifyForwardingError)
	} else {
		err = run(ctx)
	}
	if err != nil {
		err = normalizeError(operation, err)
	}

	c.observer.ObserveForward(operation, outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	fwdErr, ok := domain.AsForwardingError(err)
	switch {
	case !ok:
		return "error"
	case resilience.IsCircuitOpen(fwdErr.Err):
		return "circuit_open"
	case fwdErr.Timeout:
		return "timeout"
	case fwdErr.StatusCode > 0:
		return fmt.Sprintf("http_%dxx", fwdErr.StatusCode/100)
	default:
		return "transport"
	}
}
