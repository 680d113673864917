package update

import (
	"maps"
	"sync"
)

// RunStats counts viewer steps for one run. It is reset when a run starts and
// read when it ends; the mutex lets status endpoints read it mid-run.
type RunStats struct {
	mu              sync.Mutex
	processed       int
	succeeded       int
	failed          int
	skipped         int
	skippedByViewer map[string]int
}

// StatsSnapshot is a point-in-time copy of RunStats.
type StatsSnapshot struct {
	Processed       int            `json:"processed"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	SkippedByViewer map[string]int `json:"skipped_by_viewer,omitempty"`
}

// NewRunStats returns zeroed counters.
func NewRunStats() *RunStats {
	return &RunStats{skippedByViewer: make(map[string]int)}
}

// Reset zeroes every counter.
func (s *RunStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed, s.succeeded, s.failed, s.skipped = 0, 0, 0, 0
	s.skippedByViewer = make(map[string]int)
}

// Snapshot copies the counters.
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Processed: s.processed,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Skipped:   s.skipped,
	}
	if len(s.skippedByViewer) > 0 {
		snap.SkippedByViewer = maps.Clone(s.skippedByViewer)
	}
	return snap
}

func (s *RunStats) recordProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

func (s *RunStats) recordSuccess() {
	s.mu.Lock()
	s.succeeded++
	s.mu.Unlock()
}

func (s *RunStats) recordFailure() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *RunStats) recordSkip(viewer string) {
	s.mu.Lock()
	s.skipped++
	if s.skippedByViewer == nil {
		s.skippedByViewer = make(map[string]int)
	}
	s.skippedByViewer[viewer]++
	s.mu.Unlock()
}
