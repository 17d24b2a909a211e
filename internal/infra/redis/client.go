// Package redis provides the Redis-backed checkpoint store, used when
// several collector processes share progress state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sportsight/scout/internal/checkpoint"
)

// Client wraps the Redis connection.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks the connection.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func checkpointKey(jobName string) string {
	return fmt.Sprintf("checkpoint:%s", checkpoint.JobID(jobName))
}

// CheckpointStore implements checkpoint.Store over Redis string keys, one
// JSON value per job.
type CheckpointStore struct {
	rdb *redis.Client
}

// NewCheckpointStore creates a store on an existing client.
func NewCheckpointStore(c *Client) *CheckpointStore {
	return &CheckpointStore{rdb: c.rdb}
}

// Save overwrites the job's checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.rdb.Set(ctx, checkpointKey(cp.JobName), data, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Load returns the job's checkpoint, or nil when none exists.
func (s *CheckpointStore) Load(ctx context.Context, jobName string) (*checkpoint.Checkpoint, error) {
	data, err := s.rdb.Get(ctx, checkpointKey(jobName)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes the job's checkpoint.
func (s *CheckpointStore) Delete(ctx context.Context, jobName string) error {
	if err := s.rdb.Del(ctx, checkpointKey(jobName)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// List returns every stored checkpoint, scanning the key space.
func (s *CheckpointStore) List(ctx context.Context) ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint

	iter := s.rdb.Scan(ctx, 0, "checkpoint:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get failed: %w", err)
		}
		var cp checkpoint.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		out = append(out, &cp)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return out, nil
}

// CleanupOlderThan removes checkpoints not updated in the given number of
// days and returns how many were removed.
func (s *CheckpointStore) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	cps, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, cp := range cps {
		if cp.UpdatedAt.Before(cutoff) {
			if err := s.Delete(ctx, cp.JobName); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
