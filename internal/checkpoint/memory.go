package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. Useful for tests and
// one-shot runs where durability does not matter.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Checkpoint)}
}

func (ms *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cp.UpdatedAt = time.Now().UTC()
	clone := *cp
	if cp.Metadata != nil {
		clone.Metadata = make(map[string]any, len(cp.Metadata))
		for k, v := range cp.Metadata {
			clone.Metadata[k] = v
		}
	}
	ms.data[JobID(cp.JobName)] = &clone
	return nil
}

func (ms *MemoryStore) Load(ctx context.Context, jobName string) (*Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	cp, ok := ms.data[JobID(jobName)]
	if !ok {
		return nil, nil
	}
	clone := *cp
	return &clone, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, jobName string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.data, JobID(jobName))
	return nil
}

func (ms *MemoryStore) List(ctx context.Context) ([]*Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*Checkpoint, 0, len(ms.data))
	for _, cp := range ms.data {
		clone := *cp
		out = append(out, &clone)
	}
	return out, nil
}

func (ms *MemoryStore) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	removed := 0
	for id, cp := range ms.data {
		if cp.UpdatedAt.Before(cutoff) {
			delete(ms.data, id)
			removed++
		}
	}
	return removed, nil
}
