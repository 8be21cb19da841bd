package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the service client.
type Config struct {
	BaseURL           string
	APIKey            string // sent as a bearer token when set
	Timeout           time.Duration
	RequestsPerMinute int // 0 disables client-side pacing
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client calls the OCR service over HTTP. Nothing is retried; failures are
// returned to the caller.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewClient creates a service client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		logger:  cfg.Logger,
	}
}

// BaseURL returns the service root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LimiterStatus reports client-side pacing state.
func (c *Client) LimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Extract implements Service.
func (c *Client) Extract(ctx context.Context, doc Upload, opts ExtractOptions) (*ExtractResult, error) {
	form := map[string]string{
		"include_detection": strconv.FormatBool(opts.IncludeDetection),
	}
	if opts.Language != "" {
		form["language"] = opts.Language
	}
	if opts.PageNumber > 0 {
		form["page_number"] = strconv.Itoa(opts.PageNumber)
	}

	body, err := c.doRequest(ctx, "extract", http.MethodPost, "/extract", form, doc)
	if err != nil {
		return nil, err
	}

	var resp ExtractResult
	if err := decodeResponse("extract", "extract", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type pagesWire struct {
	TotalPages int                        `json:"total_pages"`
	Pages      map[string]json.RawMessage `json:"pages"`
}

// ExtractAllPages implements Service.
func (c *Client) ExtractAllPages(ctx context.Context, doc Upload, language string) (*PagesResult, error) {
	form := map[string]string{}
	if language != "" {
		form["language"] = language
	}

	body, err := c.doRequest(ctx, "extract pages", http.MethodPost, "/extract/pdf/all", form, doc)
	if err != nil {
		return nil, err
	}

	var wire pagesWire
	if err := decodeResponse("extract pages", "pages", body, &wire); err != nil {
		return nil, err
	}

	out := &PagesResult{TotalPages: wire.TotalPages, Pages: make([]PageResult, 0, len(wire.Pages))}
	for key, raw := range wire.Pages {
		var page PageResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &MalformedResponseError{Op: "extract pages", Err: fmt.Errorf("page %s: %w", key, err)}
		}
		if n, err := strconv.Atoi(key); err == nil {
			page.PageNumber = n
		} else if page.PageNumber == 0 {
			return nil, &MalformedResponseError{Op: "extract pages", Err: fmt.Errorf("page key %q is not a number", key)}
		}
		out.Pages = append(out.Pages, page)
	}
	sort.Slice(out.Pages, func(i, j int) bool { return out.Pages[i].PageNumber < out.Pages[j].PageNumber })
	if out.TotalPages == 0 {
		out.TotalPages = len(out.Pages)
	}
	return out, nil
}

// Detect implements Service.
func (c *Client) Detect(ctx context.Context, doc Upload, page int) (*DetectResult, error) {
	form := map[string]string{}
	if page > 0 {
		form["page_number"] = strconv.Itoa(page)
	}

	body, err := c.doRequest(ctx, "detect", http.MethodPost, "/detect", form, doc)
	if err != nil {
		return nil, err
	}

	var resp DetectResult
	if err := decodeResponse("detect", "detect", body, &resp); err != nil {
		return nil, err
	}
	if resp.TotalDetections == 0 {
		resp.TotalDetections = len(resp.Detections)
	}
	return &resp, nil
}

type verifyWire struct {
	Verification       map[string]VerifiedField `json:"verification"`
	VerificationResult *struct {
		FieldResults map[string]VerifiedField `json:"field_results"`
		Summary      json.RawMessage          `json:"verification_summary"`
	} `json:"verification_result"`
}

// Verify implements Service.
func (c *Client) Verify(ctx context.Context, doc Upload, submitted map[string]string) (*VerifyResult, error) {
	data, err := json.Marshal(submitted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification data: %w", err)
	}
	form := map[string]string{"verification_data": string(data)}

	body, err := c.doRequest(ctx, "verify", http.MethodPost, "/verify", form, doc)
	if err != nil {
		return nil, err
	}

	var wire verifyWire
	if err := decodeResponse("verify", "verify", body, &wire); err != nil {
		return nil, err
	}

	out := &VerifyResult{Fields: wire.Verification}
	if wire.VerificationResult != nil {
		if out.Fields == nil {
			out.Fields = wire.VerificationResult.FieldResults
		}
		out.Summary = wire.VerificationResult.Summary
	}
	if out.Fields == nil {
		out.Fields = map[string]VerifiedField{}
	}
	return out, nil
}

// Health implements Service.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	body, err := c.doRequest(ctx, "health", http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp HealthStatus
	if err := decodeResponse("health", "health", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitHealthy polls the health endpoint until the service reports healthy,
// attempts runs out, or ctx is done.
func (c *Client) WaitHealthy(ctx context.Context, attempts uint, delay time.Duration) (*HealthStatus, error) {
	var status *HealthStatus
	err := retry.Do(
		func() error {
			s, err := c.Health(ctx)
			if err != nil {
				return err
			}
			if !s.Healthy() {
				return fmt.Errorf("service status %q", s.Status)
			}
			status = s
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("service not ready", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// doRequest sends a request, multipart when form or doc is set, and returns
// the body of a successful response.
func (c *Client) doRequest(ctx context.Context, op, method, path string, form map[string]string, doc Upload) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	var (
		reqBody     io.Reader
		contentType string
	)
	if form != nil || doc != nil {
		buf, ct, err := encodeMultipart(form, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody, contentType = buf, ct
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("service request failed", "op", op, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	c.logger.Debug("service request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Record429(retryAfter(resp.Header.Get("Retry-After")))
		}
		msg, quality, ok := bodyError(respBody, true)
		if !ok {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: msg, Quality: quality}
	}

	if msg, quality, ok := bodyError(respBody, false); ok {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: msg, Quality: quality}
	}
	return respBody, nil
}

func encodeMultipart(form map[string]string, doc Upload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if doc != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, doc.FileName()))
		ct := doc.ContentType()
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(doc.Bytes()); err != nil {
			return nil, "", err
		}
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, form[k]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

var _ Service = (*Client)(nil)
