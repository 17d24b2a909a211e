package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sportsight/scout/internal/checkpoint"
)

// checkpointRow is the table representation of a checkpoint.
type checkpointRow struct {
	JobID        string    `db:"job_id"`
	JobName      string    `db:"job_name"`
	Type         string    `db:"checkpoint_type"`
	Value        string    `db:"value"`
	TotalItems   int       `db:"total_items"`
	ScrapedItems int       `db:"scraped_items"`
	Metadata     []byte    `db:"metadata"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *checkpointRow) toDomain() (*checkpoint.Checkpoint, error) {
	cp := &checkpoint.Checkpoint{
		JobName:      r.JobName,
		Type:         checkpoint.Type(r.Type),
		Value:        r.Value,
		TotalItems:   r.TotalItems,
		ScrapedItems: r.ScrapedItems,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint metadata: %w", err)
		}
	}
	return cp, nil
}

// CheckpointStore implements checkpoint.Store using PostgreSQL, one row per
// job keyed by the stable job ID.
type CheckpointStore struct {
	db *DB
}

// NewCheckpointStore creates a PostgreSQL checkpoint store.
func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save upserts the job's checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()

	var metadata []byte
	if cp.Metadata != nil {
		var err error
		metadata, err = json.Marshal(cp.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (
			job_id, job_name, checkpoint_type, value,
			total_items, scraped_items, metadata, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			checkpoint_type = EXCLUDED.checkpoint_type,
			value = EXCLUDED.value,
			total_items = EXCLUDED.total_items,
			scraped_items = EXCLUDED.scraped_items,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		checkpoint.JobID(cp.JobName), cp.JobName, string(cp.Type), cp.Value,
		cp.TotalItems, cp.ScrapedItems, metadata, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the job's checkpoint, or nil when none exists.
func (s *CheckpointStore) Load(ctx context.Context, jobName string) (*checkpoint.Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row,
		`SELECT job_id, job_name, checkpoint_type, value,
		        total_items, scraped_items, metadata, updated_at
		 FROM checkpoints WHERE job_id = $1`,
		checkpoint.JobID(jobName),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return row.toDomain()
}

// Delete removes the job's checkpoint.
func (s *CheckpointStore) Delete(ctx context.Context, jobName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE job_id = $1`,
		checkpoint.JobID(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns every stored checkpoint.
func (s *CheckpointStore) List(ctx context.Context) ([]*checkpoint.Checkpoint, error) {
	var rows []checkpointRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT job_id, job_name, checkpoint_type, value,
		        total_items, scraped_items, metadata, updated_at
		 FROM checkpoints ORDER BY job_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// CleanupOlderThan removes checkpoints not updated in the given number of
// days and returns how many were removed.
func (s *CheckpointStore) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE updated_at < $1`,
		time.Now().AddDate(0, 0, -days),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
