package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opsflow/opsflow/core"
	"github.com/opsflow/opsflow/resilience"
	"github.com/opsflow/opsflow/telemetry"
)

// FallbackPlan is the conservative single-operation plan substituted
// when the planner fails after its bounded retries: a read-only status
// query with no filter.
const FallbackPlan = "status"

// RunController drives a run end to end: it obtains a plan from the
// planner (itself a retried step), parses it, executes every step
// sequentially through the StepExecutor and folds the ordered results
// into a final report. Run state is checkpointed to the RunStore after
// every transition and appended StepResult so an interrupted run can
// resume from its last checkpoint.
type RunController struct {
	planner  Planner
	executor *StepExecutor
	store    RunStore
	logger   core.Logger

	plannerTimeout time.Duration
	plannerRetry   *resilience.RetryConfig
}

// NewRunController creates a run controller. The planner policy
// defaults to a 15s per-attempt timeout with 2 attempts.
func NewRunController(planner Planner, executor *StepExecutor, store RunStore) *RunController {
	return &RunController{
		planner:        planner,
		executor:       executor,
		store:          store,
		logger:         &core.NoOpLogger{},
		plannerTimeout: 15 * time.Second,
		plannerRetry: &resilience.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Second,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}
}

// SetLogger sets the logger provider
func (c *RunController) SetLogger(logger core.Logger) {
	if logger == nil {
		c.logger = &core.NoOpLogger{}
	} else {
		c.logger = logger
	}
}

// SetPlannerPolicy overrides the planner step's timeout and attempt budget
func (c *RunController) SetPlannerPolicy(timeout time.Duration, maxAttempts int) {
	if timeout > 0 {
		c.plannerTimeout = timeout
	}
	if maxAttempts > 0 {
		c.plannerRetry.MaxAttempts = maxAttempts
	}
}

// SubmitTask runs a task to completion and returns its final report.
// A fresh run identifier is generated when runID is empty. Per-step
// failures never surface as errors here: they are folded into the
// report. The returned error is reserved for run-level failures
// (store unavailable at submission, context cancellation).
func (c *RunController) SubmitTask(ctx context.Context, task, runID string) (string, error) {
	if runID == "" {
		runID = "ops-" + uuid.NewString()
	}
	run, err := c.Run(ctx, runID, task)
	if err != nil {
		return "", err
	}
	return run.FinalReport, nil
}

// Run executes (or resumes) the run with the given identifier. If a
// checkpoint for runID already exists, execution picks up after the
// last recorded StepResult instead of starting over; completed runs are
// returned as-is.
func (c *RunController) Run(ctx context.Context, runID, task string) (*Run, error) {
	if existing, err := c.store.Get(ctx, runID); err == nil && existing != nil {
		if existing.Status.Terminal() {
			return existing, nil
		}
		c.logger.Info("Resuming run from checkpoint", map[string]interface{}{
			"operation":      "run_resume",
			"run_id":         runID,
			"status":         string(existing.Status),
			"recorded_steps": len(existing.Results),
		})
		return c.resume(ctx, existing)
	}

	run := &Run{
		ID:        runID,
		Task:      task,
		Status:    RunCreated,
		StartTime: time.Now(),
	}

	// The initial save proves the persistence substrate is reachable.
	// Failing it is a run-level failure, propagated unchanged.
	if err := c.store.Save(ctx, run); err != nil {
		return nil, core.NewOpsError("controller.Run", "store", err)
	}

	return c.resume(ctx, run)
}

// ResumeRun picks up a previously checkpointed run after a process
// restart. Returns core.ErrRunNotFound when no checkpoint exists.
func (c *RunController) ResumeRun(ctx context.Context, runID string) (*Run, error) {
	run, err := c.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}
	return c.resume(ctx, run)
}

// resume drives a run forward from whatever state its checkpoint
// recorded: planning if no plan exists yet, then step execution from
// the first step without a recorded result.
func (c *RunController) resume(ctx context.Context, run *Run) (*Run, error) {
	ctx, span := telemetry.StartSpan(ctx, "opsflow.run")
	defer span.End()
	telemetry.SetSpanAttributes(ctx,
		attribute.String("opsflow.run.id", run.ID),
		attribute.String("opsflow.run.task", run.Task),
	)

	if run.PlanText == "" {
		run.Status = RunPlanning
		c.checkpoint(ctx, run)

		planText, fellBack := c.plan(ctx, run.Task)
		if err := ctx.Err(); err != nil {
			return c.cancel(run, err)
		}
		run.PlanText = planText
		run.Plan = ParsePlan(planText)
		if fellBack {
			run.Status = RunPlanFallback
		} else {
			run.Status = RunPlanned
		}
		c.checkpoint(ctx, run)

		c.logger.Info("Plan ready", map[string]interface{}{
			"operation":  "plan_ready",
			"run_id":     run.ID,
			"plan":       planText,
			"step_count": len(run.Plan),
			"fallback":   fellBack,
		})
	}

	telemetry.SetSpanAttributes(ctx, attribute.Int("opsflow.run.step_count", len(run.Plan)))
	return c.execute(ctx, run)
}

// plan invokes the external planner as a durable step under the
// planner's own timeout and small retry budget. On exhausted retries
// the conservative fallback plan is substituted rather than failing
// the run. A successful response that is blank is a valid empty plan:
// the run executes zero steps and completes with an empty report.
func (c *RunController) plan(ctx context.Context, task string) (planText string, fellBack bool) {
	err := resilience.Retry(ctx, c.plannerRetry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.plannerTimeout)
		defer cancel()

		out, err := c.planner.Plan(attemptCtx, task)
		if err != nil {
			return err
		}
		planText = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		c.logger.Warn("Planner failed, substituting fallback plan", map[string]interface{}{
			"operation":     "plan_fallback",
			"error":         err.Error(),
			"fallback_plan": FallbackPlan,
		})
		return FallbackPlan, true
	}
	return planText, false
}

// execute drives the step loop sequentially: step i+1 begins only after
// step i's result is recorded. "restart x, then check health of x" is
// only meaningful in plan order.
func (c *RunController) execute(ctx context.Context, run *Run) (*Run, error) {
	run.Status = RunExecuting
	c.checkpoint(ctx, run)

	for i := len(run.Results); i < len(run.Plan); i++ {
		if err := ctx.Err(); err != nil {
			return c.cancel(run, err)
		}

		spec := run.Plan[i]
		telemetry.AddSpanEvent(ctx, "step_started",
			attribute.Int("step_index", i),
			attribute.String("step", spec.String()),
		)

		result := c.executor.ExecuteStep(ctx, spec)

		// A result produced only because the run context died is not a
		// recorded outcome: the step did not resolve, the run stopped.
		if err := ctx.Err(); err != nil && !result.Success {
			return c.cancel(run, err)
		}

		run.Results = append(run.Results, result)
		c.checkpoint(ctx, run)

		telemetry.AddSpanEvent(ctx, "step_completed",
			attribute.Int("step_index", i),
			attribute.Bool("success", result.Success),
		)
	}

	run.FinalReport = c.buildReport(run.Results)
	run.Status = RunCompleted
	now := time.Now()
	run.EndTime = &now
	c.checkpoint(ctx, run)

	failed := 0
	for _, r := range run.Results {
		if !r.Success {
			failed++
		}
	}
	c.logger.Info("Run completed", map[string]interface{}{
		"operation":    "run_complete",
		"run_id":       run.ID,
		"steps":        len(run.Results),
		"failed_steps": failed,
		"duration_ms":  time.Since(run.StartTime).Milliseconds(),
	})

	return run, nil
}

// cancel records cancellation: completed steps keep their results,
// no further steps execute, effects already produced stay produced.
func (c *RunController) cancel(run *Run, cause error) (*Run, error) {
	run.Status = RunCancelled
	run.FinalReport = c.buildReport(run.Results)
	now := time.Now()
	run.EndTime = &now
	// Best-effort checkpoint with a fresh context: the run context is
	// already dead.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSave()
	c.checkpoint(saveCtx, run)

	c.logger.Warn("Run cancelled", map[string]interface{}{
		"operation":       "run_cancelled",
		"run_id":          run.ID,
		"completed_steps": len(run.Results),
		"planned_steps":   len(run.Plan),
	})
	return run, cause
}

// buildReport folds ordered step results into the final report: one
// paragraph per step in plan order, blank line between paragraphs.
// Failure paragraphs are marked distinctly from success paragraphs.
func (c *RunController) buildReport(results []StepResult) string {
	paragraphs := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			paragraphs = append(paragraphs, r.Output)
		} else {
			paragraphs = append(paragraphs, fmt.Sprintf("❌ Step '%s' failed: %s", r.Spec, r.Error))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// checkpoint persists the run, logging (not failing) on store errors:
// the run's forward progress does not depend on every intermediate
// write landing, only the initial save is load-bearing.
func (c *RunController) checkpoint(ctx context.Context, run *Run) {
	if err := c.store.Save(ctx, run); err != nil {
		c.logger.Warn("Failed to checkpoint run", map[string]interface{}{
			"operation": "run_checkpoint",
			"run_id":    run.ID,
			"status":    string(run.Status),
			"error":     err.Error(),
		})
	}
}
