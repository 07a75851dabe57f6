package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Phase represents the lifecycle phase of a listing job.
type Phase string

const (
	PhaseStart            Phase = "start"
	PhaseContentReady     Phase = "content_ready"
	PhaseCredentialsReady Phase = "credentials_ready"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether no further processing happens in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// CopyVariant is target-specific rewritten listing copy produced by the
// content optimizer.
type CopyVariant struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ItemData describes the product being listed. It is passed through the
// pipeline untouched except where the optimizer rewrites a copy.
type ItemData struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Price       float64                `json:"price"`
	Currency    string                 `json:"currency,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Brand       string                 `json:"brand,omitempty"`
	Condition   string                 `json:"condition,omitempty"`
	Images      []string               `json:"images,omitempty"`
	Attributes  map[string]string      `json:"attributes,omitempty"`
	Variants    map[string]CopyVariant `json:"variants,omitempty"`
}

// CopyFor returns the title and description to use for the given target,
// falling back to the item's own copy when no variant exists.
func (i ItemData) CopyFor(target string) (title, description string) {
	if v, ok := i.Variants[target]; ok {
		return v.Title, v.Description
	}
	return i.Title, i.Description
}

// Credential is authentication material for one target, captured by the
// browser extension and stored by the backend. The blobs are opaque here.
type Credential struct {
	Target      string     `json:"target"`
	ProfileID   string     `json:"profile_id"`
	Cookies     string     `json:"cookies,omitempty"`
	Storage     string     `json:"storage,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

// Expired reports whether the credential has a known expiry in the past.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// JobRequest is one request to publish a single item to a set of targets.
type JobRequest struct {
	JobID   string   `json:"job_id"`
	OwnerID string   `json:"owner_id"`
	Item    ItemData `json:"item"`
	Targets []string `json:"targets"`
}

// Validate checks the request is processable at all. A request failing this
// can never succeed and must be dropped, not retried.
func (r JobRequest) Validate() error {
	if r.JobID == "" {
		return errors.New("job_id is required")
	}
	if len(r.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	return nil
}

// Envelope is the queue wire format. Immutable once enqueued.
type Envelope struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// DecodeEnvelope parses a raw queue entry into an envelope and its job
// request. Entries lacking the outer wrapper are treated as a bare
// JobRequest (backward-compatible unwrap).
func DecodeEnvelope(raw []byte) (Envelope, JobRequest, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, JobRequest{}, fmt.Errorf("parse envelope: %w", err)
	}
	payload := env.Data
	if len(payload) == 0 {
		payload = raw
	}
	var req JobRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return Envelope{}, JobRequest{}, fmt.Errorf("parse job request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return Envelope{}, JobRequest{}, fmt.Errorf("invalid job request: %w", err)
	}
	return env, req, nil
}

// TargetResult is the outcome of one target's posting attempt.
type TargetResult struct {
	Target   string            `json:"target"`
	Success  bool              `json:"success"`
	URL      string            `json:"url,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JobState is the checkpointed progress of one job. It is owned exclusively
// by the processor instance currently working that job_id.
type JobState struct {
	JobID            string                  `json:"job_id"`
	Phase            Phase                   `json:"phase"`
	OptimizedItem    *ItemData               `json:"optimized_item,omitempty"`
	Credentials      map[string]Credential   `json:"credentials,omitempty"`
	PendingTargets   []string                `json:"pending_targets"`
	CompletedTargets []string                `json:"completed_targets"`
	Results          map[string]TargetResult `json:"results"`
	StartedAt        time.Time               `json:"started_at"`
	CheckpointAt     time.Time               `json:"checkpoint_at,omitempty"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`
	LastError        string                  `json:"last_error,omitempty"`
}

// NewState creates a fresh state for a first processing attempt.
func NewState(req JobRequest) *JobState {
	return &JobState{
		JobID:            req.JobID,
		Phase:            PhaseStart,
		PendingTargets:   slices.Clone(req.Targets),
		CompletedTargets: []string{},
		Results:          make(map[string]TargetResult),
		StartedAt:        time.Now().UTC(),
	}
}

// CompleteTarget moves a target from pending to completed and records its
// result. Invariant: pending and completed stay disjoint and their union
// stays equal to the original target set.
func (s *JobState) CompleteTarget(target string, res TargetResult) {
	if i := slices.Index(s.PendingTargets, target); i >= 0 {
		s.PendingTargets = slices.Delete(s.PendingTargets, i, i+1)
	}
	if !slices.Contains(s.CompletedTargets, target) {
		s.CompletedTargets = append(s.CompletedTargets, target)
	}
	if s.Results == nil {
		s.Results = make(map[string]TargetResult)
	}
	s.Results[target] = res
}

// SuccessCount returns how many targets posted successfully so far.
func (s *JobState) SuccessCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// JobResult is the aggregated outcome returned to the queue layer.
type JobResult struct {
	JobID           string                  `json:"job_id"`
	Success         bool                    `json:"success"`
	Results         map[string]TargetResult `json:"results"`
	SuccessfulPosts int                     `json:"successful_posts"`
	TotalTargets    int                     `json:"total_targets"`
	CompletedAt     time.Time               `json:"completed_at"`
}
