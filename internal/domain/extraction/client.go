// Package extraction reads line items out of PDF documents through an
// OpenAI-compatible Responses API.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/fastener-match/pkg/metrics"
)

var tracer = otel.Tracer("github.com/FACorreiaa/fastener-match/internal/domain/extraction")

var (
	ErrExtractorNotConfigured = errors.New("extraction: no API key configured")
	ErrEmptyResponse          = errors.New("extraction: model returned no text")
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4.1"
	defaultTimeout    = 2 * time.Minute
	defaultRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	maxResponseBytes  = 8 << 20
)

const prompt = `Extract the tabular line items from this document.
Return a single JSON object with exactly these keys:
  "table_title": a short title for the table,
  "columns": the column headers in order,
  "rows": an array of rows, each row an array of cell values in column order.
Include every line item. Do not add commentary outside the JSON object.`

// Config configures the extraction client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Result is what one extraction produced.
type Result struct {
	Table Table  `json:"table"`
	Items []Item `json:"items"`
	Raw   string `json:"-"`
}

// Client calls the Responses endpoint with the PDF inlined as a file part.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient fills unset Config fields with defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// WithMetrics sets the collectors used to count extraction outcomes.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type inputPart struct {
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Text     string `json:"text,omitempty"`
}

type inputMessage struct {
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (r responsesResponse) text() string {
	var b strings.Builder
	for _, out := range r.Output {
		for _, c := range out.Content {
			if c.Type == "output_text" || c.Type == "text" {
				b.WriteString(c.Text)
			}
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	return r.OutputText
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("extraction: api returned %d: %s", e.code, e.body)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Extract sends the PDF to the model and parses its answer into a table and
// line items. Retryable failures (429, 5xx, transport) are retried with
// capped exponential backoff.
func (c *Client) Extract(ctx context.Context, filename string, pdf []byte) (*Result, error) {
	ctx, span := tracer.Start(ctx, "extraction.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("filename", filename),
		attribute.Int("bytes", len(pdf)),
	)

	if !c.Configured() {
		c.observe("not_configured")
		return nil, ErrExtractorNotConfigured
	}

	body, err := json.Marshal(responsesRequest{
		Model: c.model,
		Input: []inputMessage{{
			Role: "user",
			Content: []inputPart{
				{
					Type:     "input_file",
					Filename: filename,
					FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
				},
				{Type: "input_text", Text: prompt},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction request: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries),
		retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(c.retryDelay)))

	var text string
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		t, err := c.send(ctx, body)
		if err == nil {
			text = t
			return nil
		}

		var se *statusError
		if errors.As(err, &se) && !retryableStatus(se.code) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		c.logger.Warn("extraction attempt failed, retrying",
			slog.String("filename", filename),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		c.observe("error")
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		c.observe("empty")
		return nil, ErrEmptyResponse
	}

	table := ParseTable(text)
	items := table.Items()
	span.SetAttributes(attribute.Int("items", len(items)))
	c.observe("ok")

	c.logger.Info("document extracted",
		slog.String("filename", filename),
		slog.Int("rows", len(table.Rows)),
		slog.Int("items", len(items)),
		slog.Int("attempts", attempt),
	)

	return &Result{Table: table, Items: items, Raw: text}, nil
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return "", &statusError{code: resp.StatusCode, body: msg}
	}

	var out responsesResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode extraction response: %w", err)
	}
	return out.text(), nil
}

func (c *Client) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.Extractions.WithLabelValues(outcome).Inc()
	}
}
