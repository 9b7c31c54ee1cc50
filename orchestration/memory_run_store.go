package orchestration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opsflow/opsflow/core"
)

// MemoryRunStore is an in-memory RunStore for tests and ephemeral
// deployments. Runs are deep-copied on both save and get so callers
// never share mutable state with the store.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryRunStore creates an empty in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs: make(map[string]*Run),
	}
}

// Save stores a snapshot of the run
func (s *MemoryRunStore) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Get retrieves a snapshot of the run by id
func (s *MemoryRunStore) Get(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return cloneRun(run), nil
}

// ListRecent returns run summaries ordered by start time, newest first
func (s *MemoryRunStore) ListRecent(ctx context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		summaries = append(summaries, summarize(run))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryRunStore) Close() error {
	return nil
}

func cloneRun(run *Run) *Run {
	clone := *run
	clone.Plan = append([]OperationSpec(nil), run.Plan...)
	clone.Results = append([]StepResult(nil), run.Results...)
	if run.EndTime != nil {
		end := *run.EndTime
		clone.EndTime = &end
	}
	return &clone
}

func summarize(run *Run) RunSummary {
	summary := RunSummary{
		ID:        run.ID,
		Task:      run.Task,
		Status:    run.Status,
		StepCount: len(run.Results),
		StartTime: run.StartTime,
	}
	for _, r := range run.Results {
		if !r.Success {
			summary.FailedSteps++
		}
	}
	return summary
}

// Ensure MemoryRunStore implements RunStore
var _ RunStore = (*MemoryRunStore)(nil)
