package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ============================================================================
// OctoPrint REST client
// ============================================================================
// Jog and home go through /api/printer/printhead, cancel through /api/job.
// OctoPrint answers 204 No Content on success; 409 means the printer is not
// operational (or no job is running for cancel).
// ============================================================================

// OctoPrintClient drives a printer through the OctoPrint REST API.
type OctoPrintClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewOctoPrintClient creates a client for the OctoPrint instance at baseURL.
func NewOctoPrintClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *OctoPrintClient {
	return &OctoPrintClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Jog moves one axis relative to its current position.
func (c *OctoPrintClient) Jog(ctx context.Context, axis string, distance float64) error {
	if err := validAxis(axis); err != nil {
		return err
	}
	body := map[string]any{"command": "jog"}
	body[strings.ToLower(axis)] = distance
	if err := c.post(ctx, "/api/printer/printhead", body); err != nil {
		return fmt.Errorf("jog %s: %w", axis, err)
	}
	c.logger.Debug("octoprint jog", "axis", axis, "distance", distance)
	return nil
}

// Home homes the given axes.
func (c *OctoPrintClient) Home(ctx context.Context, axes ...string) error {
	lower := make([]string, 0, len(axes))
	for _, a := range axes {
		if err := validAxis(a); err != nil {
			return err
		}
		lower = append(lower, strings.ToLower(a))
	}
	body := map[string]any{
		"command": "home",
		"axes":    lower,
	}
	if err := c.post(ctx, "/api/printer/printhead", body); err != nil {
		return fmt.Errorf("home %v: %w", axes, err)
	}
	c.logger.Debug("octoprint home", "axes", lower)
	return nil
}

// Cancel aborts the active job.
func (c *OctoPrintClient) Cancel(ctx context.Context) error {
	if err := c.post(ctx, "/api/job", map[string]any{"command": "cancel"}); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	c.logger.Debug("octoprint cancel")
	return nil
}

// Close releases idle connections.
func (c *OctoPrintClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *OctoPrintClient) post(ctx context.Context, path string, body any) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build URL: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// readSecretFile loads a single-line secret such as an API key.
func readSecretFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return s, nil
}
