package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/optimize"
)

var _ optimize.Optimizer = (*Client)(nil)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	authSchemeBearer    = "Bearer"

	endpointChatCompletions = "v1/chat/completions"

	defaultTimeout    = 60 * time.Second
	errorSnippetLimit = 400

	systemPrompt = "You are a marketplace listing copywriter. Given a product and a list of " +
		"marketplaces, produce selling copy tailored to each marketplace's audience and " +
		"conventions. Respond with a single JSON object of the form " +
		`{"variants":{"<marketplace>":{"title":"...","description":"..."}}}` +
		" and nothing else."
)

// Client implements optimize.Optimizer by calling an OpenAI-compatible
// chat completions endpoint (OpenRouter).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New creates an OpenRouter optimizer client.
func New(cfg config.OpenRouterSettings) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Optimize asks the model for per-target copy and merges it into a copy of
// the item. The original item is never mutated.
func (c *Client) Optimize(ctx context.Context, item jobs.ItemData, targets []string) (jobs.ItemData, error) {
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return jobs.ItemData{}, fmt.Errorf("marshal item: %w", err)
	}
	userMsg := fmt.Sprintf("Marketplaces: %s\nProduct:\n%s", strings.Join(targets, ", "), itemJSON)

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMsg},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return jobs.ItemData{}, fmt.Errorf("marshal request: %w", err)
	}

	u, err := url.JoinPath(c.baseURL, endpointChatCompletions)
	if err != nil {
		return jobs.ItemData{}, fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return jobs.ItemData{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerContentType, common.ContentTypeJSON)
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set(headerAuthorization, authSchemeBearer+" "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return jobs.ItemData{}, ctx.Err()
		}
		return jobs.ItemData{}, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return jobs.ItemData{}, fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}

	var comp chatCompletionResponse
	if err := json.Unmarshal(respBytes, &comp); err != nil {
		return jobs.ItemData{}, fmt.Errorf("parse response: %w", err)
	}
	if len(comp.Choices) == 0 || comp.Choices[0].Message.Content == "" {
		return jobs.ItemData{}, fmt.Errorf("empty completion")
	}

	variants, err := parseVariants(comp.Choices[0].Message.Content)
	if err != nil {
		return jobs.ItemData{}, err
	}

	out := item
	out.Variants = make(map[string]jobs.CopyVariant, len(targets))
	for _, target := range targets {
		if v, ok := variants[target]; ok && v.Title != "" {
			out.Variants[target] = v
		}
	}
	if len(out.Variants) == 0 {
		return jobs.ItemData{}, fmt.Errorf("no usable variants in completion")
	}
	return out, nil
}

// parseVariants extracts the variants object from the model reply, tolerating
// surrounding prose or code fences.
func parseVariants(content string) (map[string]jobs.CopyVariant, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion")
	}
	var parsed struct {
		Variants map[string]jobs.CopyVariant `json:"variants"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("parse variants: %w", err)
	}
	if len(parsed.Variants) == 0 {
		return nil, fmt.Errorf("completion has no variants")
	}
	return parsed.Variants, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// OpenAI-compatible Chat Completions request/response types

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Choices []chatCompletionChoice `json:"choices"`
}

type chatCompletionChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}
