package batch

import (
	"context"
	"testing"
	"time"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.MaxBatchSize != DefaultMaxBatchSize {
		t.Errorf("expected default max batch size %d, got %d", DefaultMaxBatchSize, cfg.MaxBatchSize)
	}
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, cfg.Concurrency)
	}
	if cfg.JobTTL != DefaultJobTTL {
		t.Errorf("expected default job TTL %s, got %s", DefaultJobTTL, cfg.JobTTL)
	}

	custom := Config{MaxBatchSize: 10, Concurrency: 2, JobTTL: time.Minute}.withDefaults()
	if custom.MaxBatchSize != 10 || custom.Concurrency != 2 || custom.JobTTL != time.Minute {
		t.Errorf("expected custom values preserved, got %+v", custom)
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
	}
	for status, want := range terminal {
		if got := status.terminal(); got != want {
			t.Errorf("Status(%q).terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestCreateJob_RejectsOutOfRangeSizes(t *testing.T) {
	e := New(nil, nil, nil, Config{MaxBatchSize: 3})

	if _, err := e.CreateJob(context.Background(), "empty", nil); err == nil {
		t.Error("expected error for zero items")
	}
	tooMany := []Item{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}
	if _, err := e.CreateJob(context.Background(), "too-many", tooMany); err == nil {
		t.Error("expected error for batch exceeding MaxBatchSize")
	}
}

func TestJob_ProgressAndSnapshot(t *testing.T) {
	job := &Job{ID: "job-1", Status: StatusRunning, Total: 4, Processed: 1, CreatedAt: time.Now()}

	if got := job.Progress(); got != 25 {
		t.Errorf("expected 25%% progress, got %d", got)
	}

	job.Results = append(job.Results, ItemResult{ID: "a"})
	snap := job.snapshot(true)
	if len(snap.Results) != 1 {
		t.Errorf("expected detail snapshot to include results, got %+v", snap.Results)
	}

	summary := job.snapshot(false)
	if summary.Results != nil {
		t.Errorf("expected summary snapshot to omit results, got %+v", summary.Results)
	}
}

func TestJob_ListenerFanOut(t *testing.T) {
	job := &Job{ID: "job-2"}

	ch := job.addListener()
	job.emit(Event{Type: "started", JobID: job.ID})

	select {
	case ev := <-ch:
		if ev.Type != "started" {
			t.Errorf("expected started event, got %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted event")
	}

	job.removeListener(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after removeListener")
	}
}

func TestJob_EmitNeverBlocksOnFullListener(t *testing.T) {
	job := &Job{ID: "job-3"}
	ch := job.addListener()

	for i := 0; i < 64; i++ {
		job.emit(Event{Type: "item_done", JobID: job.ID})
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected at least one buffered event")
	}
}

func TestNextIndex_MonotonicAcrossGoroutines(t *testing.T) {
	var cursor int64 = -1
	const n = 100
	seen := make(chan int, n)
	done := make(chan struct{})

	for g := 0; g < 8; g++ {
		go func() {
			for {
				i := nextIndex(&cursor)
				if i >= n {
					return
				}
				seen <- i
			}
		}()
	}
	go func() {
		vals := make(map[int]bool)
		for len(vals) < n {
			vals[<-seen] = true
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all indices to be claimed exactly once")
	}
}

func TestEvictExpired_RemovesOnlyOldTerminalJobs(t *testing.T) {
	e := New(nil, nil, nil, Config{JobTTL: time.Hour})

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-time.Minute)

	e.jobs["old-done"] = &Job{ID: "old-done", Status: StatusCompleted, CompletedAt: &old}
	e.jobs["recent-done"] = &Job{ID: "recent-done", Status: StatusCompleted, CompletedAt: &recent}
	e.jobs["running"] = &Job{ID: "running", Status: StatusRunning}
	e.ids = []string{"old-done", "recent-done", "running"}

	e.evictExpired()

	if _, ok := e.jobs["old-done"]; ok {
		t.Error("expected old terminal job to be evicted")
	}
	if _, ok := e.jobs["recent-done"]; !ok {
		t.Error("expected recent terminal job to survive")
	}
	if _, ok := e.jobs["running"]; !ok {
		t.Error("expected non-terminal job to survive regardless of age")
	}
}

func TestListJobs_NewestFirstAndLimit(t *testing.T) {
	e := New(nil, nil, nil, Config{})
	// Deliberately random-looking UUIDs, alphabetically unrelated to
	// insertion order, so this catches any regression to sorting IDs
	// lexically instead of reversing insertion order.
	ids := []string{
		"9f0c1a2b-0000-0000-0000-000000000001",
		"1a2b3c4d-0000-0000-0000-000000000002",
		"ffffffff-0000-0000-0000-000000000003",
	}
	for _, id := range ids {
		e.jobs[id] = &Job{ID: id, Status: StatusCompleted}
	}
	e.ids = append([]string(nil), ids...)

	all := e.ListJobs(0)
	if len(all) != 3 || all[0].ID != ids[2] {
		t.Errorf("expected newest-first ordering (insertion order reversed), got %+v", all)
	}
	if all[1].ID != ids[1] || all[2].ID != ids[0] {
		t.Errorf("expected full reversal of insertion order, got %+v", all)
	}

	limited := e.ListJobs(2)
	if len(limited) != 2 {
		t.Errorf("expected limit to cap results, got %d", len(limited))
	}
	if limited[0].ID != ids[2] || limited[1].ID != ids[1] {
		t.Errorf("expected limit to keep the newest entries, got %+v", limited)
	}
}

func TestSubscribe_UnknownJobReturnsFalse(t *testing.T) {
	e := New(nil, nil, nil, Config{})
	_, _, ok := e.Subscribe("missing")
	if ok {
		t.Error("expected Subscribe to report not-found for an unregistered job")
	}
}
