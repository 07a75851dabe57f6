package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/sessions"
)

var _ sessions.Provider = (*Client)(nil)

// Client loads credentials from the backend's internal sessions endpoint.
// Sessions are captured by the browser extension and stored encrypted; the
// blobs stay opaque to the worker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func New(cfg config.SessionAPISettings) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Load(ctx context.Context, ownerID, target string) (jobs.Credential, bool, error) {
	url := fmt.Sprintf("%s/internal/users/%s/sessions/%s", c.baseURL, ownerID, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return jobs.Credential{}, false, fmt.Errorf("new request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set(common.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jobs.Credential{}, false, fmt.Errorf("sessions request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return jobs.Credential{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return jobs.Credential{}, false, fmt.Errorf("sessions api: status %d", resp.StatusCode)
	}

	var cred jobs.Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return jobs.Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	if cred.Target == "" {
		cred.Target = target
	}
	if cred.Expired(time.Now().UTC()) {
		return jobs.Credential{}, false, nil
	}
	return cred, true, nil
}
