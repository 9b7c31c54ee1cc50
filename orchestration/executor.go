package orchestration

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/opsflow/opsflow/core"
	"github.com/opsflow/opsflow/resilience"
)

// StepExecutor executes one operation spec against the catalog under
// the operation's timeout and retry policy. Every invocation path
// terminates in a StepResult: errors never propagate past this
// boundary, so the run controller can always proceed to the next step.
type StepExecutor struct {
	catalog *Catalog
	logger  core.Logger
}

// NewStepExecutor creates a step executor over the given catalog
func NewStepExecutor(catalog *Catalog) *StepExecutor {
	return &StepExecutor{
		catalog: catalog,
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider
func (e *StepExecutor) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
	} else {
		e.logger = logger
	}
}

// ExecuteStep resolves the spec against the catalog and invokes the
// corresponding handler. Unknown tokens and missing required parameters
// fail fast without any external call; handler invocations are retried
// per the descriptor's policy with each attempt bounded by the
// descriptor's timeout, and permanent failures short-circuit the
// remaining attempt budget.
func (e *StepExecutor) ExecuteStep(ctx context.Context, spec OperationSpec) (result StepResult) {
	start := time.Now()
	result = StepResult{
		Spec:      spec,
		StartTime: start,
	}

	defer func() {
		if r := recover(); r != nil {
			// A panicking handler becomes a failed step result rather
			// than crashing the whole run.
			e.logger.Error("Step execution panic", map[string]interface{}{
				"operation": "step_execution_panic",
				"step":      spec.String(),
				"panic":     fmt.Sprintf("%v", r),
				"stack":     string(debug.Stack()),
			})
			result.Success = false
			result.Error = fmt.Sprintf("step execution panic: %v", r)
			result.EndTime = time.Now()
			result.Duration = time.Since(start)
		}
	}()

	desc, ok := e.catalog.Lookup(spec.Type)
	if !ok {
		e.logger.Warn("Unknown operation in plan", map[string]interface{}{
			"operation": "catalog_lookup",
			"token":     spec.Type,
		})
		return e.finish(result, "", fmt.Errorf("%w %q", core.ErrUnknownOperation, spec.Type), start)
	}

	if desc.ParamRequired && spec.Param1 == "" {
		return e.finish(result, "",
			fmt.Errorf("%w: operation %q requires a parameter", core.ErrMissingParameter, desc.Token), start)
	}

	inv := Invocation{Spec: spec, Lines: coerceLines(spec.Param2)}

	e.logger.Debug("Starting step execution", map[string]interface{}{
		"operation":    "step_execution_start",
		"step":         spec.String(),
		"timeout":      desc.Timeout.String(),
		"max_attempts": desc.Retry.MaxAttempts,
	})

	var output string
	attempts := 0
	err := resilience.Retry(ctx, desc.Retry, func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
		defer cancel()

		out, err := desc.Invoke(attemptCtx, inv)
		if err != nil {
			e.logger.Debug("Step attempt failed", map[string]interface{}{
				"operation": "step_attempt",
				"step":      spec.String(),
				"attempt":   attempts,
				"error":     err.Error(),
				"permanent": core.IsPermanent(err),
			})
			return err
		}
		output = out
		return nil
	})

	result.Attempts = attempts
	return e.finish(result, output, err, start)
}

// finish records timing and outcome on the result
func (e *StepExecutor) finish(result StepResult, output string, err error, start time.Time) StepResult {
	result.EndTime = time.Now()
	result.Duration = time.Since(start)

	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		result.Success = true
		result.Output = output
	}

	e.logger.Debug("Step execution completed", map[string]interface{}{
		"operation":   "step_execution_complete",
		"step":        result.Spec.String(),
		"success":     result.Success,
		"attempts":    result.Attempts,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result
}

// coerceLines converts the textual line-count parameter to an integer,
// falling back to the documented default when missing or unparseable.
func coerceLines(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLogLines
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultLogLines
	}
	return n
}
