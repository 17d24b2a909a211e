// Package checkpoint records durable per-job progress so an interrupted
// crawl resumes where it left off instead of starting over.
package checkpoint

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Type describes what the progress value means.
type Type string

const (
	TypePage   Type = "page"
	TypeDate   Type = "date"
	TypeOffset Type = "offset"
	TypeCursor Type = "cursor"
)

// Checkpoint is one job's durable progress record. Value is opaque to the
// store; its meaning depends on Type.
type Checkpoint struct {
	JobName      string         `json:"scraper_name"`
	Type         Type           `json:"checkpoint_type"`
	Value        string         `json:"value"`
	TotalItems   int            `json:"total_items"`
	ScrapedItems int            `json:"scraped_items"`
	UpdatedAt    time.Time      `json:"last_updated"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Progress returns completion as a percentage, 0 when the total is unknown.
func (c *Checkpoint) Progress() float64 {
	if c == nil || c.TotalItems == 0 {
		return 0
	}
	return float64(c.ScrapedItems) / float64(c.TotalItems) * 100
}

// Store persists one checkpoint per job name. Save overwrites atomically;
// Load returns nil (no error) when the job has no checkpoint.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, jobName string) (*Checkpoint, error)
	Delete(ctx context.Context, jobName string) error
	List(ctx context.Context) ([]*Checkpoint, error)
	CleanupOlderThan(ctx context.Context, days int) (int, error)
}

// Progress loads a job's checkpoint and returns its completion percentage.
func Progress(ctx context.Context, s Store, jobName string) (float64, error) {
	cp, err := s.Load(ctx, jobName)
	if err != nil {
		return 0, err
	}
	return cp.Progress(), nil
}

// JobID derives the stable short identifier a store keys records by.
func JobID(jobName string) string {
	sum := md5.Sum([]byte(jobName))
	return hex.EncodeToString(sum[:])[:16]
}
