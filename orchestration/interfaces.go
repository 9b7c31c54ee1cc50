package orchestration

import (
	"context"
	"strings"
	"time"
)

// OperationSpec is one typed step parsed from a plan segment
// (`type[:param1[:param2]]`). Immutable once created.
type OperationSpec struct {
	Type   string `json:"type"`
	Param1 string `json:"param1,omitempty"`
	Param2 string `json:"param2,omitempty"`
}

// String renders the spec back in plan-segment form for reports and logs
func (s OperationSpec) String() string {
	parts := []string{s.Type}
	if s.Param2 != "" {
		parts = append(parts, s.Param1, s.Param2)
	} else if s.Param1 != "" {
		parts = append(parts, s.Param1)
	}
	return strings.Join(parts, ":")
}

// StepResult contains the recorded outcome of one executed step.
// Every plan entry yields exactly one StepResult, success or failure.
type StepResult struct {
	Spec      OperationSpec `json:"spec"`
	Output    string        `json:"output,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// RunStatus represents the run state machine
type RunStatus string

const (
	RunCreated      RunStatus = "created"
	RunPlanning     RunStatus = "planning"
	RunPlanned      RunStatus = "planned"
	RunPlanFallback RunStatus = "plan_fallback"
	RunExecuting    RunStatus = "executing"
	RunCompleted    RunStatus = "completed"
	RunCancelled    RunStatus = "cancelled"
)

// Terminal reports whether no further work will happen on the run
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunCancelled
}

// Run is one end-to-end execution of a task from submission to final
// report. It is owned by exactly one RunController invocation and is
// checkpointed to the RunStore after every appended StepResult.
type Run struct {
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	Status      RunStatus       `json:"status"`
	PlanText    string          `json:"plan_text,omitempty"`
	Plan        []OperationSpec `json:"plan,omitempty"`
	Results     []StepResult    `json:"results,omitempty"`
	FinalReport string          `json:"final_report,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
}

// RunSummary is a lightweight listing view of a stored run
type RunSummary struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Status      RunStatus `json:"status"`
	StepCount   int       `json:"step_count"`
	FailedSteps int       `json:"failed_steps"`
	StartTime   time.Time `json:"start_time"`
}

// Planner converts a natural-language task into a comma-separated plan
// string. It is an externally-owned, non-deterministic collaborator and
// is always consumed behind this interface so tests can substitute a
// deterministic stub.
type Planner interface {
	Plan(ctx context.Context, task string) (string, error)
}

// PlannerFunc adapts a plain function to the Planner interface
type PlannerFunc func(ctx context.Context, task string) (string, error)

func (f PlannerFunc) Plan(ctx context.Context, task string) (string, error) {
	return f(ctx, task)
}

// RunStore persists run state across suspension points and process
// restarts. Save is the checkpoint primitive: the controller calls it
// after every state transition and appended StepResult.
type RunStore interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, runID string) (*Run, error)
	ListRecent(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}
