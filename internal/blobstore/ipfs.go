package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
)

const defaultIPFSTimeout = 60 * time.Second

// IPFSConfig configures the Kubo RPC client.
type IPFSConfig struct {
	APIURL         string
	MaxBytes       int64
	TimeoutSeconds int
}

// IPFS adds content through a Kubo node's RPC API.
type IPFS struct {
	apiURL     string
	maxBytes   int64
	httpClient *http.Client
}

// IPFSOption customizes the client.
type IPFSOption func(*IPFS)

// WithIPFSHTTPClient overrides the default HTTP client.
func WithIPFSHTTPClient(client *http.Client) IPFSOption {
	return func(s *IPFS) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewIPFS constructs a Kubo RPC client.
func NewIPFS(cfg IPFSConfig, opts ...IPFSOption) (*IPFS, error) {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		return nil, errors.New("ipfs: api url is required")
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("ipfs: parse api url: %w", err)
	}
	timeout := defaultIPFSTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	store := &IPFS{
		apiURL:     apiURL,
		maxBytes:   cfg.MaxBytes,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Put uploads data with raw leaves and CIDv1 so the returned CID matches ContentID
// for single-block content.
func (s *IPFS) Put(ctx context.Context, data []byte) (Reference, error) {
	if err := checkSize(data, s.maxBytes); err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "content")
	if err != nil {
		return "", fmt.Errorf("ipfs add: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("ipfs add: build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("ipfs add: build form: %w", err)
	}

	endpoint := s.apiURL + "/api/v0/add?cid-version=1&raw-leaves=true&pin=true&quieter=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("ipfs add: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: ipfs add: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: ipfs add: read response: %w", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyIPFSStatus(resp.StatusCode, payload)
	}

	var added addResponse
	if err := json.Unmarshal(lastJSONLine(payload), &added); err != nil {
		return "", fmt.Errorf("%w: ipfs add: decode response: %w", ErrUnavailable, err)
	}
	id, err := cid.Decode(strings.TrimSpace(added.Hash))
	if err != nil {
		return "", fmt.Errorf("%w: ipfs add: invalid cid %q: %w", ErrUnavailable, added.Hash, err)
	}
	return Reference("ipfs://" + id.String()), nil
}

// Check calls /api/v0/version.
func (s *IPFS) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/version", nil)
	if err != nil {
		return fmt.Errorf("ipfs version: new request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ipfs version: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ipfs version: http %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Kubo streams one JSON object per line when progress is enabled; the final
// line describes the root.
func lastJSONLine(payload []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(payload), []byte("\n"))
	return lines[len(lines)-1]
}

func classifyIPFSStatus(status int, payload []byte) error {
	var kuboErr struct {
		Message string `json:"Message"`
	}
	_ = json.Unmarshal(payload, &kuboErr)
	message := strings.TrimSpace(kuboErr.Message)
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusRequestEntityTooLarge,
		strings.Contains(lower, "storage max"),
		strings.Contains(lower, "quota"):
		return fmt.Errorf("%w: ipfs add: http %d: %s", ErrRejected, status, message)
	default:
		return fmt.Errorf("%w: ipfs add: http %d: %s", ErrUnavailable, status, message)
	}
}
