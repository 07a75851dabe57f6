// Package agent posts listings through a browser-automation service. The
// service drives an AI agent against the marketplace UI; from here it is an
// opaque, slow, flaky remote call: submit a task, poll until it settles.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/poster"
)

var _ poster.Poster = (*Poster)(nil)

const errorSnippetLimit = 400

// Poster submits listing tasks for one marketplace to the automation
// service.
type Poster struct {
	name         string
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	maxSteps     int
}

// New creates a Poster for the named marketplace.
func New(name string, cfg config.AgentSettings) (*Poster, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("poster name must not be empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("agent baseUrl must not be empty")
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 50
	}
	return &Poster{
		name:         name,
		httpClient:   http.DefaultClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: pollInterval,
		maxSteps:     maxSteps,
	}, nil
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (p *Poster) WithHTTPClient(c *http.Client) *Poster {
	p.httpClient = c
	return p
}

func (p *Poster) Name() string { return p.name }

// Post submits the listing task and polls until the agent settles or the
// context deadline expires. The deadline error propagates so the caller can
// classify it as a timeout.
func (p *Poster) Post(ctx context.Context, req poster.PostRequest) (poster.PostResult, error) {
	taskID, err := p.submit(ctx, req)
	if err != nil {
		return poster.PostResult{}, err
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return poster.PostResult{}, ctx.Err()
		case <-ticker.C:
		}

		task, err := p.poll(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return poster.PostResult{}, ctx.Err()
			}
			return poster.PostResult{}, err
		}
		switch task.Status {
		case "queued", "running":
			continue
		case "done":
			return settle(p.name, task), nil
		case "failed":
			detail := task.Error
			if detail == "" {
				detail = "automation task failed"
			}
			return poster.PostResult{Success: false, Detail: detail}, nil
		default:
			return poster.PostResult{}, fmt.Errorf("unknown task status %q", task.Status)
		}
	}
}

type taskRequest struct {
	Marketplace string   `json:"marketplace"`
	ProfileID   string   `json:"profile_id,omitempty"`
	Cookies     string   `json:"cookies,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency,omitempty"`
	Category    string   `json:"category,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Images      []string `json:"images,omitempty"`
	MaxSteps    int      `json:"max_steps"`
	Reference   string   `json:"reference,omitempty"`
}

type taskState struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued|running|done|failed
	URL    string `json:"url,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Steps  int    `json:"steps,omitempty"`
}

func (p *Poster) submit(ctx context.Context, req poster.PostRequest) (string, error) {
	title, description := req.Item.CopyFor(p.name)
	payload := taskRequest{
		Marketplace: p.name,
		ProfileID:   req.Credential.ProfileID,
		Cookies:     req.Credential.Cookies,
		Title:       title,
		Description: description,
		Price:       req.Item.Price,
		Currency:    req.Item.Currency,
		Category:    req.Item.Category,
		Condition:   req.Item.Condition,
		Images:      req.Item.Images,
		MaxSteps:    p.maxSteps,
		Reference:   req.JobID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", common.ContentTypeJSON)
	if strings.TrimSpace(p.apiKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent api: status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}
	var task taskState
	if err := json.Unmarshal(respBytes, &task); err != nil {
		return "", fmt.Errorf("parse task: %w", err)
	}
	if task.ID == "" {
		return "", fmt.Errorf("agent api returned no task id")
	}
	return task.ID, nil
}

func (p *Poster) poll(ctx context.Context, taskID string) (taskState, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return taskState{}, fmt.Errorf("new request: %w", err)
	}
	if strings.TrimSpace(p.apiKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return taskState{}, fmt.Errorf("poll task: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return taskState{}, fmt.Errorf("agent api: status %d", resp.StatusCode)
	}
	var task taskState
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return taskState{}, fmt.Errorf("parse task: %w", err)
	}
	return task, nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s"')<>]+`)

// Agent output is free text; these markers are a best-effort signal that the
// run did not actually create a listing. Orchestration never depends on
// their accuracy, only on the boolean and URL produced here.
var failureMarkers = []string{
	"captcha",
	"login required",
	"session expired",
	"rate limit",
	"could not complete",
	"verification required",
}

// settle derives a result from a finished task: an explicit URL wins,
// otherwise the output is scanned for a plausible listing URL, preferring
// one on the marketplace's own domain.
func settle(marketplace string, task taskState) poster.PostResult {
	url := task.URL
	if url == "" {
		url = extractURL(marketplace, task.Output)
	}
	lower := strings.ToLower(task.Output)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return poster.PostResult{
				Success:  false,
				Detail:   marker,
				Metadata: map[string]string{"steps": fmt.Sprint(task.Steps)},
			}
		}
	}
	if url == "" {
		return poster.PostResult{
			Success:  false,
			Detail:   "could not extract listing URL - listing may have been created",
			Metadata: map[string]string{"steps": fmt.Sprint(task.Steps)},
		}
	}
	return poster.PostResult{
		Success:  true,
		URL:      url,
		Metadata: map[string]string{"steps": fmt.Sprint(task.Steps)},
	}
}

func extractURL(marketplace, output string) string {
	matches := urlPattern.FindAllString(output, -1)
	for _, m := range matches {
		if strings.Contains(strings.ToLower(m), marketplace) {
			return m
		}
	}
	if len(matches) > 0 {
		return matches[len(matches)-1]
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
