// ABOUTME: JSON-over-HTTP client for a remotely hosted processing engine
// ABOUTME: POST /v1/handle for updates, GET /v1/capabilities for discovery

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
)

// HTTPEngine talks to an engine service over HTTP. Each call is bounded by
// the configured timeout; the caller's context can cut it shorter.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPEngine creates a client for the engine at baseURL.
func NewHTTPEngine(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "engine"),
	}
}

func (e *HTTPEngine) Handle(ctx context.Context, update *telego.Update) (*Result, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("encoding update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/handle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatching update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded slice of the body for diagnostics only.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, snippet)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding engine result: %w", err)
	}
	return &result, nil
}

func (e *HTTPEngine) ListCapabilities(ctx context.Context) ([]Capability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching capabilities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var caps []Capability
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		return nil, fmt.Errorf("decoding capabilities: %w", err)
	}
	return caps, nil
}
