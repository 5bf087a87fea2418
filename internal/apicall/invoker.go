package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reserved response keys injected into object bodies.
const (
	StatusCodeKey = "VF_STATUS_CODE"
	HeadersKey    = "VF_HEADERS"
)

const maxRedirects = 10

// DebugFunc receives diagnostic messages destined for the conversation debug trace.
type DebugFunc func(message string)

// Result is the outcome of a completed call, whatever its status code.
type Result struct {
	StatusCode int
	Headers    map[string]string
	// Body is the decoded JSON response, or the raw text when it is not JSON.
	Body any
	// Variables holds the resolved response mappings.
	Variables map[string]any
}

// Invoker performs api node calls. It is safe for concurrent use and is meant to be
// shared by every turn of the process so that connections are pooled.
type Invoker struct {
	policy        *SecurityPolicy
	limiter       ports.RateLimiter
	client        *http.Client
	config        ResponseConfig
	throttleDelay time.Duration
	logger        *slog.Logger
	hooks         domain.LifecycleHooks
	tracer        trace.Tracer
	sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures an Invoker.
type Option func(*Invoker)

func WithSecurityPolicy(p *SecurityPolicy) Option {
	return func(inv *Invoker) {
		inv.policy = p
	}
}

// WithRateLimiter sets the hostname usage limiter. A nil limiter disables throttling.
func WithRateLimiter(l ports.RateLimiter) Option {
	return func(inv *Invoker) {
		inv.limiter = l
	}
}

// WithHTTPClient replaces the pooled client. The client should enforce the policy
// at dial time itself; see NewHTTPClient.
func WithHTTPClient(c *http.Client) Option {
	return func(inv *Invoker) {
		inv.client = c
	}
}

func WithResponseConfig(c ResponseConfig) Option {
	return func(inv *Invoker) {
		inv.config = c
	}
}

func WithThrottleDelay(d time.Duration) Option {
	return func(inv *Invoker) {
		inv.throttleDelay = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(inv *Invoker) {
		inv.hooks = hooks
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(inv *Invoker) {
		inv.tracer = tracer
	}
}

// NewInvoker creates an invoker with the default policy, an in-memory rate limiter
// and a pooled client that re-validates addresses at dial time.
func NewInvoker(opts ...Option) *Invoker {
	inv := &Invoker{
		policy:        NewSecurityPolicy(),
		limiter:       NewMemoryRateLimiter(0, 0),
		throttleDelay: DefaultThrottleDelay,
		logger:        logging.NewNop(),
		tracer:        otel.Tracer("github.com/aretw0/parley/internal/apicall"),
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.config = inv.config.withDefaults()
	if inv.client == nil {
		inv.client = NewHTTPClient(inv.policy)
	}
	return inv
}

// NewHTTPClient returns a client whose dialer rejects prohibited addresses and whose
// redirects are validated like the original URL.
func NewHTTPClient(policy *SecurityPolicy) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   policy.Control,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			_, err := policy.Validate(req.Context(), req.URL.String())
			return err
		},
	}
}

// Call validates, rate-limits and performs the call described by data, then maps the
// response into variables. Non-2xx statuses are returned as data; only validation and
// connectivity failures are errors.
func (inv *Invoker) Call(ctx context.Context, data domain.APIActionData, debug DebugFunc) (res *Result, err error) {
	if debug == nil {
		debug = func(string) {}
	}
	ctx, span := inv.tracer.Start(ctx, "apicall.Call", trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	var (
		hostname  string
		throttled bool
	)
	defer func() {
		event := &domain.APICallEvent{
			Timestamp: start,
			Hostname:  hostname,
			Duration:  time.Since(start),
			Throttled: throttled,
			Err:       err,
		}
		if res != nil {
			event.Status = res.StatusCode
			span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if inv.hooks.OnAPICall != nil {
			inv.hooks.OnAPICall(ctx, event)
		}
	}()

	hostname, err = inv.policy.Validate(ctx, data.URL)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("server.address", hostname), attribute.String("http.request.method", string(data.Method)))

	throttled = inv.throttle(ctx, hostname, debug)
	if throttled {
		if err := inv.sleep(ctx, inv.throttleDelay); err != nil {
			return nil, err
		}
	}

	rc, err := FormatRequestConfig(data, inv.config)
	if err != nil {
		return nil, err
	}
	res, err = inv.do(ctx, rc)
	if err != nil {
		return nil, err
	}

	if obj, ok := res.Body.(map[string]any); ok {
		obj[StatusCodeKey] = json.Number(strconv.Itoa(res.StatusCode))
		headers := make(map[string]any, len(res.Headers))
		for k, v := range res.Headers {
			headers[k] = v
		}
		obj[HeadersKey] = headers
	}
	res.Variables = ResolveVariableMapping(data.Mappings, map[string]any{"response": res.Body})
	return res, nil
}

// throttle records the call. Limiter failures never block the call.
func (inv *Invoker) throttle(ctx context.Context, hostname string, debug DebugFunc) bool {
	if inv.limiter == nil {
		return false
	}
	should, err := inv.limiter.AddHostnameUseAndShouldThrottle(ctx, hostname)
	if err != nil {
		inv.logger.Warn("outgoing api rate limiter failed", "hostname", hostname, "err", err)
		debug("Outgoing Api Rate Limiter failed - Error: " + err.Error())
		return false
	}
	if should {
		inv.logger.Info("throttling outgoing api call", "hostname", hostname, "delay", inv.throttleDelay)
	}
	return should
}

func (inv *Invoker) do(ctx context.Context, rc *RequestConfig) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, rc.Timeout)
	defer cancel()

	req, err := rc.NewRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := inv.client.Do(req)
	if err != nil {
		var bad *BadRequestError
		if errors.As(err, &bad) {
			return nil, bad
		}
		return nil, fmt.Errorf("%s %s: %w", rc.Method, rc.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, rc.MaxResponseBodyLength+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(raw)) > rc.MaxResponseBodyLength {
		return nil, fmt.Errorf("response from %s: %w", rc.URL, ErrBodyTooLarge)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       decodeBody(raw),
	}, nil
}

// decodeBody parses JSON bodies keeping number literals; anything else is returned as text.
func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return string(raw)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(raw)
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
