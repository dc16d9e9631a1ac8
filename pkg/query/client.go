package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"caterpillar/pkg/config"

	"github.com/tidwall/gjson"
)

const (
	// Boundary is the fixed multipart boundary token used for every request.
	Boundary = "atc"

	fieldName = "query"
)

// Client posts user utterances to the remote query service.
//
// A Client holds no per-request state and may be shared.
type Client struct {
	url            string
	httpClient     *http.Client
	requestTimeout time.Duration
	log            *slog.Logger
}

// New validates the service settings and constructs a client.
func New(cfg config.ServiceConfig, log *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		url:            strings.TrimSpace(cfg.URL),
		httpClient:     &http.Client{},
		requestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		log:            log.With("component", "query.client"),
	}, nil
}

// URL returns the endpoint queries are posted to.
func (c *Client) URL() string {
	return c.url
}

// Timeout returns the per-query deadline, zero when unbounded.
func (c *Client) Timeout() time.Duration {
	return c.requestTimeout
}

// EncodeForm renders text as a single-field multipart/form-data body and
// returns it together with the matching Content-Type header value.
func EncodeForm(text string) ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.SetBoundary(Boundary); err != nil {
		return nil, "", fmt.Errorf("set multipart boundary: %w", err)
	}
	if err := writer.WriteField(fieldName, text); err != nil {
		return nil, "", fmt.Errorf("write %s field: %w", fieldName, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}

	return body.Bytes(), writer.FormDataContentType(), nil
}

// Query sends text to the service and returns the decoded JSON document.
//
// Any failure yields a nil document and a *Error describing the stage that
// failed. The HTTP status code is logged but not interpreted.
func (c *Client) Query(ctx context.Context, text string) (*Document, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := c.log.With("operation", "query")
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		log = log.With("request_id", requestID)
	}
	startedAt := time.Now()

	body, contentType, err := EncodeForm(text)
	if err != nil {
		return nil, newError(KindRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindRequest, fmt.Errorf("build request: %w", err))
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "*/*")

	log.Debug("query request started", "query_length", len(text), "body_bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("query request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, newError(KindTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug("query response read failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode, "error", err)
		return nil, newError(KindTransport, fmt.Errorf("read response body: %w", err))
	}

	doc, err := Decode(raw)
	if err != nil {
		log.Debug("query response rejected", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode, "body_bytes", len(raw), "error", err)
		return nil, err
	}

	log.Debug("query request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode, "body_bytes", len(raw))
	return doc, nil
}

// Answer runs Query and Extract and reports an empty answer as KindNoAnswer.
func (c *Client) Answer(ctx context.Context, text string) (string, error) {
	doc, err := c.Query(ctx, text)
	if err != nil {
		return "", err
	}

	answer, _ := Extract(doc)
	if answer == "" {
		return "", newError(KindNoAnswer, errors.New("service response carried no reply text"))
	}

	return answer, nil
}

// Decode interprets a fully buffered body as UTF-8 JSON.
func Decode(raw []byte) (*Document, error) {
	if !utf8.Valid(raw) {
		return nil, newError(KindEncoding, errors.New("response body is not valid UTF-8"))
	}
	if !gjson.ValidBytes(raw) {
		return nil, newError(KindDecode, errors.New("response body is not valid JSON"))
	}

	return &Document{root: gjson.ParseBytes(raw)}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}
