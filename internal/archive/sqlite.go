// Package archive keeps terminal job outcomes in a local SQLite database,
// durable beyond the checkpoint and status TTLs.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crosslister/listing-worker/internal/jobs"
)

type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_results (
		job_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		success INTEGER NOT NULL,
		successful_posts INTEGER NOT NULL,
		total_targets INTEGER NOT NULL,
		results_json TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		archived_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// ArchivedJob is one recorded terminal outcome.
type ArchivedJob struct {
	JobID           string
	OwnerID         string
	Title           string
	Success         bool
	SuccessfulPosts int
	TotalTargets    int
	Results         map[string]jobs.TargetResult
	CompletedAt     time.Time
	ArchivedAt      time.Time
}

// Record inserts or replaces the outcome for a job. Re-delivered jobs
// overwrite their earlier row.
func (s *Store) Record(ctx context.Context, req jobs.JobRequest, res jobs.JobResult) error {
	resultsJSON, err := json.Marshal(res.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO job_results
		(job_id, owner_id, title, success, successful_posts, total_targets, results_json, completed_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.JobID,
		req.OwnerID,
		req.Item.Title,
		boolToInt(res.Success),
		res.SuccessfulPosts,
		res.TotalTargets,
		string(resultsJSON),
		res.CompletedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job result: %w", err)
	}
	return nil
}

// Get returns an archived job, or nil when none exists.
func (s *Store) Get(ctx context.Context, jobID string) (*ArchivedJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, owner_id, title, success, successful_posts, total_targets, results_json, completed_at, archived_at
		FROM job_results WHERE job_id = ?`, jobID)

	var (
		a                     ArchivedJob
		success               int
		resultsJSON           string
		completedAt, archived string
	)
	err := row.Scan(&a.JobID, &a.OwnerID, &a.Title, &success, &a.SuccessfulPosts, &a.TotalTargets, &resultsJSON, &completedAt, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job result: %w", err)
	}
	a.Success = success != 0
	if err := json.Unmarshal([]byte(resultsJSON), &a.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if a.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if a.ArchivedAt, err = time.Parse(time.RFC3339Nano, archived); err != nil {
		return nil, fmt.Errorf("parse archived_at: %w", err)
	}
	return &a, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
