package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestJobID(t *testing.T) {
	a := JobID("premier-league-results")
	b := JobID("premier-league-results")
	c := JobID("la-liga-results")

	if a != b {
		t.Errorf("JobID not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("distinct jobs collided on %q", a)
	}
	if len(a) != 16 {
		t.Errorf("JobID length = %d, want 16", len(a))
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name string
		cp   *Checkpoint
		want float64
	}{
		{"nil checkpoint", nil, 0},
		{"unknown total", &Checkpoint{ScrapedItems: 5}, 0},
		{"halfway", &Checkpoint{TotalItems: 10, ScrapedItems: 5}, 50},
		{"complete", &Checkpoint{TotalItems: 4, ScrapedItems: 4}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cp.Progress(); got != tt.want {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	cp, err := s.Load(ctx, "missing")
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if cp != nil {
		t.Fatalf("Load(missing) = %+v, want nil", cp)
	}

	in := &Checkpoint{
		JobName:      "serie-a-fixtures",
		Type:         TypePage,
		Value:        "12",
		TotalItems:   380,
		ScrapedItems: 120,
		Metadata:     map[string]any{"season": "2025-26"},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	out, err := s.Load(ctx, "serie-a-fixtures")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if out == nil {
		t.Fatal("Load returned nil after Save")
	}
	if out.Value != "12" || out.Type != TypePage || out.ScrapedItems != 120 {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.UpdatedAt.IsZero() {
		t.Error("Save did not stamp UpdatedAt")
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d checkpoints, want 1", len(list))
	}

	if err := s.Delete(ctx, "serie-a-fixtures"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	out, err = s.Load(ctx, "serie-a-fixtures")
	if err != nil {
		t.Fatalf("Load after Delete error: %v", err)
	}
	if out != nil {
		t.Errorf("checkpoint survived Delete: %+v", out)
	}

	// deleting again must not fail
	if err := s.Delete(ctx, "serie-a-fixtures"); err != nil {
		t.Errorf("second Delete error: %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	testStoreRoundTrip(t, s)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemoryStore())
}

func TestFileStoreAtomicFormat(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()

	cp := &Checkpoint{JobName: "bundesliga", Type: TypeDate, Value: "2026-08-01"}
	if err := s.Save(ctx, cp); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	path := filepath.Join(dir, JobID("bundesliga")+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("checkpoint file is not valid JSON: %v", err)
	}
	if raw["scraper_name"] != "bundesliga" {
		t.Errorf("scraper_name = %v, want bundesliga", raw["scraper_name"])
	}

	// no temp files left behind
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFileStoreConcurrentSaves(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cp := &Checkpoint{
				JobName:      "ligue-1",
				Type:         TypeOffset,
				Value:        "100",
				ScrapedItems: n,
				TotalItems:   100,
			}
			if err := s.Save(ctx, cp); err != nil {
				t.Errorf("Save error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	out, err := s.Load(ctx, "ligue-1")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if out == nil {
		t.Fatal("checkpoint missing after concurrent saves")
	}
	if out.Value != "100" {
		t.Errorf("Value = %q, want 100", out.Value)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	fresh := &Checkpoint{JobName: "fresh"}
	if err := s.Save(ctx, fresh); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	stale := &Checkpoint{JobName: "stale"}
	if err := s.Save(ctx, stale); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	s.mu.Lock()
	s.data[JobID("stale")].UpdatedAt = time.Now().AddDate(0, 0, -10)
	s.mu.Unlock()

	removed, err := s.CleanupOlderThan(ctx, 7)
	if err != nil {
		t.Fatalf("CleanupOlderThan error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	cp, _ := s.Load(ctx, "fresh")
	if cp == nil {
		t.Error("fresh checkpoint was removed")
	}
	cp, _ = s.Load(ctx, "stale")
	if cp != nil {
		t.Error("stale checkpoint survived cleanup")
	}
}
