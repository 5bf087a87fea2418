// Package nlu classifies free text into intent requests through a prediction service.
package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds one prediction call.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps the prediction body read into memory.
const maxResponseBytes = 1 << 20

// StatusError is returned when the prediction service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nlu prediction failed with status %d: %s", e.StatusCode, e.Body)
}

// Client calls POST {endpoint}/runtime/{projectID}/predict. Errors are returned as is;
// the client never retries.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (DefaultTimeout, default transport).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithTracer sets the tracer used for prediction spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(cl *Client) {
		cl.tracer = tracer
	}
}

// NewClient creates a client for the prediction service at endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: DefaultTimeout},
		logger:   logging.NewNop(),
		tracer:   otel.Tracer("github.com/aretw0/parley/pkg/nlu"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictRequest struct {
	Query string `json:"query"`
}

// Predict classifies query for the project. An empty query yields the _empty intent
// without calling the service.
func (c *Client) Predict(ctx context.Context, projectID, query string) (*domain.Request, error) {
	if query == "" {
		return domain.NewIntentRequest("", domain.EmptyIntent), nil
	}

	ctx, span := c.tracer.Start(ctx, "nlu.Predict", trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	req, err := c.predict(ctx, projectID, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("nlu prediction failed", "project_id", projectID, "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("nlu.intent", req.IntentName()))
	return req, nil
}

func (c *Client) predict(ctx context.Context, projectID, query string) (*domain.Request, error) {
	body, err := json.Marshal(predictRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction request: %w", err)
	}
	endpoint := c.endpoint + "/runtime/" + url.PathEscape(projectID) + "/predict"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nlu prediction: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out domain.Request
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	if !out.IsIntent() {
		return nil, fmt.Errorf("prediction is not an intent request: %q", out.Type)
	}
	return &out, nil
}
