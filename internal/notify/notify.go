// Package notify posts a completion webhook to the backend so it can raise
// in-app notifications. Delivery is fire-and-forget with a small retry;
// failures never affect the job outcome.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
)

type Notifier struct {
	log        *slog.Logger
	httpClient *http.Client
	url        string
	retries    int
	backoff    time.Duration
}

func New(log *slog.Logger, cfg config.NotifyConfig) *Notifier {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Notifier{
		log:        log,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        cfg.WebhookURL,
		retries:    retries,
		backoff:    backoff,
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (n *Notifier) WithHTTPClient(c *http.Client) *Notifier {
	n.httpClient = c
	return n
}

type completionPayload struct {
	Type              string         `json:"type"`
	JobID             string         `json:"job_id"`
	OwnerID           string         `json:"owner_id"`
	ListingTitle      string         `json:"listing_title"`
	SuccessfulTargets []string       `json:"successful_targets"`
	TotalTargets      int            `json:"total_targets"`
	Result            jobs.JobResult `json:"result"`
}

// JobCompleted sends the completion webhook.
func (n *Notifier) JobCompleted(ctx context.Context, req jobs.JobRequest, res jobs.JobResult) {
	successful := make([]string, 0, len(res.Results))
	for target, tr := range res.Results {
		if tr.Success {
			successful = append(successful, target)
		}
	}
	payload := completionPayload{
		Type:              "job_completed",
		JobID:             req.JobID,
		OwnerID:           req.OwnerID,
		ListingTitle:      req.Item.Title,
		SuccessfulTargets: successful,
		TotalTargets:      res.TotalTargets,
		Result:            res,
	}
	if err := n.postWithRetry(ctx, payload); err != nil {
		n.log.Warn("completion webhook failed after retries", "job_id", req.JobID, "err", err)
	}
}

func (n *Notifier) postWithRetry(ctx context.Context, payload any) error {
	var lastErr error
	for attempt := 1; attempt <= n.retries; attempt++ {
		if err := n.post(ctx, payload); err != nil {
			lastErr = err
			if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}
			time.Sleep(time.Duration(attempt) * n.backoff)
			continue
		}
		return nil
	}
	return lastErr
}

func (n *Notifier) post(ctx context.Context, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
