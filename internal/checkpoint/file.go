package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps one JSON file per job under a directory. Writes go
// through a temp file plus rename so a crash mid-write never leaves a
// corrupt record. Writes for the same job are serialized; jobs are
// independent.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// jobLock returns the per-job mutex, creating it on first use.
func (fs *FileStore) jobLock(jobName string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l, ok := fs.locks[jobName]
	if !ok {
		l = &sync.Mutex{}
		fs.locks[jobName] = l
	}
	return l
}

func (fs *FileStore) path(jobName string) string {
	return filepath.Join(fs.dir, JobID(jobName)+".json")
}

// Save overwrites the job's checkpoint atomically.
func (fs *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	l := fs.jobLock(cp.JobName)
	l.Lock()
	defer l.Unlock()

	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(fs.dir, JobID(cp.JobName)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, fs.path(cp.JobName)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	slog.Debug("checkpoint saved",
		"job", cp.JobName,
		"progress", fmt.Sprintf("%d/%d", cp.ScrapedItems, cp.TotalItems),
	)
	return nil
}

// Load returns the job's checkpoint, or nil when none exists.
func (fs *FileStore) Load(ctx context.Context, jobName string) (*Checkpoint, error) {
	l := fs.jobLock(jobName)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(fs.path(jobName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes the job's checkpoint. Missing records are not an error.
func (fs *FileStore) Delete(ctx context.Context, jobName string) error {
	l := fs.jobLock(jobName)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(fs.path(jobName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns every stored checkpoint.
func (fs *FileStore) List(ctx context.Context) ([]*Checkpoint, error) {
	paths, err := filepath.Glob(filepath.Join(fs.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var out []*Checkpoint
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read checkpoint file", "file", path, "error", err)
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			slog.Warn("failed to parse checkpoint file", "file", path, "error", err)
			continue
		}
		out = append(out, &cp)
	}
	return out, nil
}

// CleanupOlderThan removes checkpoints not updated in the given number of
// days and returns how many were removed.
func (fs *FileStore) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	cps, err := fs.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, cp := range cps {
		if cp.UpdatedAt.Before(cutoff) {
			if err := fs.Delete(ctx, cp.JobName); err != nil {
				return removed, err
			}
			removed++
		}
	}

	if removed > 0 {
		slog.Info("stale checkpoints removed", "count", removed, "days", days)
	}
	return removed, nil
}
