// Package remote talks to the QA backend: the shared settings document, the
// AI credential store and the connection tests.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
)

// DefaultBaseURL is the backend address when none is configured.
const DefaultBaseURL = "http://localhost:8000"

const maxResponseSize = 4 << 20

// Client is a rate-limited client for the backend endpoints. Idempotent
// reads are retried on connectivity failures; writes are not.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets how often a failed read is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
		maxRetries: 1,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchConfig returns the backend's copy of the settings document.
func (c *Client) FetchConfig(ctx context.Context) (core.RawDocument, error) {
	var body json.RawMessage
	if err := c.do(ctx, OpFetchConfig, http.MethodGet, "/config", nil, nil, &body); err != nil {
		return nil, err
	}
	raw, err := core.ParseRaw(body)
	if err != nil {
		return nil, core.ErrExecution(core.CodeRemoteFailed, "backend config is not a JSON object").WithCause(err)
	}
	return raw, nil
}

// FetchAPIConfig returns the backend's env-style AI credential map.
func (c *Client) FetchAPIConfig(ctx context.Context) (map[string]string, error) {
	var body map[string]any
	if err := c.do(ctx, OpFetchAPIConfig, http.MethodGet, "/api-config", nil, nil, &body); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(body))
	for k, v := range body {
		switch tv := v.(type) {
		case nil:
		case string:
			out[k] = tv
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out, nil
}

// PushConfig sends the outbound form of doc to the backend.
func (c *Client) PushConfig(ctx context.Context, doc core.ConfigDocument) error {
	var ack ackResponse
	if err := c.do(ctx, OpPushConfig, http.MethodPost, "/config", nil, core.Encode(core.Outbound(doc)), &ack); err != nil {
		return err
	}
	return ack.check("saving config")
}

// PushAPIConfig sends the AI credential map to the backend.
func (c *Client) PushAPIConfig(ctx context.Context, values map[string]string) error {
	var ack ackResponse
	if err := c.do(ctx, OpPushAPIConfig, http.MethodPost, "/api-config", nil, values, &ack); err != nil {
		return err
	}
	return ack.check("saving API config")
}

// TestJiraConnection asks the backend to call Jira with creds. A result
// with Success false comes back together with an auth error.
func (c *Client) TestJiraConnection(ctx context.Context, creds core.JiraSessionCredentials) (*JiraTestResult, error) {
	creds = creds.Normalized()
	if !creds.Complete() {
		return nil, core.ErrValidation(core.CodeJiraIncomplete, "fill in the Jira URL, email and API token")
	}
	headers := map[string]string{
		HeaderJiraAuth:    creds.AuthHeader(),
		HeaderJiraBaseURL: creds.BaseURL,
	}
	var res JiraTestResult
	if err := c.do(ctx, OpTestJira, http.MethodPost, "/jira/test-connection", headers, nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		msg := firstNonEmpty(res.Error, res.Detail, res.Message, "jira connection failed")
		if res.Error != "" && res.Detail != "" {
			msg = res.Error + ": " + res.Detail
		}
		return &res, core.ErrAuth(msg).WithDetail("op", OpTestJira)
	}
	return &res, nil
}

// TestAPIConfig asks the backend to check its stored AI credentials.
func (c *Client) TestAPIConfig(ctx context.Context) (*APITestResult, error) {
	var res APITestResult
	if err := c.do(ctx, OpTestAPIConfig, http.MethodPost, "/test-api-config", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AnalysisTypes returns the backend's analysis-type catalog.
func (c *Client) AnalysisTypes(ctx context.Context) (core.AnalysisCatalog, error) {
	var body analysisTypesResponse
	if err := c.do(ctx, OpAnalysisTypes, http.MethodGet, "/analysis-types", nil, nil, &body); err != nil {
		return nil, err
	}
	if len(body.AnalysisTypes) == 0 {
		return nil, core.ErrExecution(core.CodeRemoteFailed, "backend returned an empty analysis-type catalog")
	}
	return core.AnalysisCatalog(body.AnalysisTypes), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, headers map[string]string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return core.ErrInternal("encoding request").WithCause(err)
		}
		payload = b
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	start := time.Now()
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err = c.doOnce(ctx, method, path, headers, payload, out)
		if err == nil || !core.IsCategory(err, core.ErrCatNetwork) {
			break
		}
	}
	metrics.RemoteRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.RemoteRequestsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	if err != nil {
		c.logger.Debug("backend request failed", "op", op, "path", path, "error", err)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, headers map[string]string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return core.ErrInternal("building request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return transportError(ctx, err)
	}
	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, path, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return core.ErrExecution(core.CodeRemoteFailed, "decoding "+path+" response").WithCause(err)
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.ErrTimeout("backend did not answer in time").WithCause(err)
	}
	return core.ErrNetwork("backend unreachable").WithCause(err)
}

func statusError(status int, path string, body []byte) error {
	msg := messageFromBody(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	var de *core.DomainError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		de = core.ErrAuth(msg)
	case status == http.StatusNotFound:
		de = core.ErrNotFound("endpoint", path)
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		de = core.ErrConflict(core.CodeRemoteRejected, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		de = core.ErrTimeout(msg)
	case status >= 500:
		de = core.ErrExecution(core.CodeRemoteFailed, msg)
	default:
		de = core.ErrValidation(core.CodeRemoteRejected, msg)
	}
	return de.WithDetail("status", status)
}

// messageFromBody extracts FastAPI-style {"detail": ...} or
// {"error"/"message": ...} bodies.
func messageFromBody(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch d := eb.Detail.(type) {
	case string:
		if d != "" {
			return d
		}
	case nil:
	default:
		if b, err := json.Marshal(d); err == nil {
			return string(b)
		}
	}
	return firstNonEmpty(eb.Error, eb.Message)
}

func (a ackResponse) check(action string) error {
	if a.Success == nil || *a.Success {
		return nil
	}
	return core.ErrExecution(core.CodeRemoteFailed, firstNonEmpty(a.Message, action+" failed"))
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(core.GetCategory(err))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// StatusCode returns the HTTP status recorded on a backend error, or 0.
func StatusCode(err error) int {
	var de *core.DomainError
	if !errors.As(err, &de) || de.Details == nil {
		return 0
	}
	status, _ := de.Details["status"].(int)
	return status
}
