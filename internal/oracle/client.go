package oracle

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
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 512
)

var (
	realLabels = map[string]struct{}{"real": {}, "authentic": {}, "realism": {}}
	fakeLabels = map[string]struct{}{"fake": {}, "deepfake": {}, "artificial": {}}
)

// Config captures the settings needed to reach a classifier endpoint.
type Config struct {
	URL            string
	APIToken       string
	Model          string
	Threshold      float64
	TimeoutSeconds int
}

// Client scores images through an HTTP image-classification endpoint that
// answers with [{"label": "...", "score": 0..1}].
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithThreshold overrides the configured verdict threshold.
func WithThreshold(threshold float64) Option {
	return func(c *Client) {
		c.cfg.Threshold = threshold
	}
}

// WithModel overrides the model label recorded on assessments.
func WithModel(model string) Option {
	return func(c *Client) {
		c.cfg.Model = strings.TrimSpace(model)
	}
}

// NewClient constructs a classifier client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			URL:            strings.TrimSpace(cfg.URL),
			APIToken:       strings.TrimSpace(cfg.APIToken),
			Model:          strings.TrimSpace(cfg.Model),
			Threshold:      cfg.Threshold,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("classifier request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Assess posts data to the classifier and converts its label probabilities
// into an Assessment. The score is P(real) * 100.
func (c *Client) Assess(ctx context.Context, data []byte) (Assessment, error) {
	if c.cfg.URL == "" {
		return Assessment{}, fmt.Errorf("%w: classifier url not configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return Assessment{}, fmt.Errorf("classifier request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Assessment{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Assessment{}, classifyTransportError(err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Assessment{}, classifyStatus(resp.StatusCode, body)
	}

	var labels []classification
	if err := json.Unmarshal(body, &labels); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode classifier response: %v", ErrUnsupportedFormat, err)
	}
	score, err := scoreFromLabels(labels)
	if err != nil {
		return Assessment{}, err
	}
	return NewAssessment(score, c.cfg.Threshold, c.cfg.Model), nil
}

// Check issues a lightweight GET against the endpoint to confirm it answers.
func (c *Client) Check(ctx context.Context) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("%w: classifier url not configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("classifier check: new request: %w", err)
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func scoreFromLabels(labels []classification) (float64, error) {
	var (
		pReal, pFake     float64
		hasReal, hasFake bool
	)
	for _, entry := range labels {
		label := strings.ToLower(strings.TrimSpace(entry.Label))
		if _, ok := realLabels[label]; ok {
			pReal, hasReal = entry.Score, true
		}
		if _, ok := fakeLabels[label]; ok {
			pFake, hasFake = entry.Score, true
		}
	}
	switch {
	case hasReal:
		return pReal * 100, nil
	case hasFake:
		return 100 - pFake*100, nil
	default:
		return 0, fmt.Errorf("%w: no real/fake labels in classifier response", ErrUnsupportedFormat)
	}
}

func classifyStatus(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	statusErr := &httpStatusError{StatusCode: status, Body: snippet}
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, statusErr)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return fmt.Errorf("%w: %w", ErrTimeout, statusErr)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, statusErr)
	}
}

func classifyTransportError(err error) error {
	if ctxErr := classifyContextError(err); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func classifyContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return nil
	}
}
