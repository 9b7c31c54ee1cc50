package orchestration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opsflow/opsflow/core"
	"github.com/opsflow/opsflow/resilience"
)

// DefaultLogLines is the line count used when a logs step carries no
// usable count parameter.
const DefaultLogLines = 100

// Handlers bundles the external operation collaborators the catalog
// dispatches to. Each handler returns text or an error classified as
// transient (retryable) or permanent via core.IsPermanent.
type Handlers struct {
	ContainerStatus  func(ctx context.Context, filter string) (string, error)
	ContainerHealth  func(ctx context.Context, name string) (string, error)
	ContainerLogs    func(ctx context.Context, name string, lines int) (string, error)
	ContainerRestart func(ctx context.Context, name string) (string, error)
	Time             func(ctx context.Context) (string, error)
	Weather          func(ctx context.Context, city string) (string, error)
	Fact             func(ctx context.Context, topic string) (string, error)
}

// Invocation carries a resolved step into a handler. Lines is the
// integer-coerced logs line count; for other operations it holds the
// default and is ignored.
type Invocation struct {
	Spec  OperationSpec
	Lines int
}

// OperationDescriptor bundles the execution policy for one operation
// type: the capability to invoke, its parameter requirement, the
// per-attempt timeout and the retry policy.
type OperationDescriptor struct {
	Token         string
	Description   string
	Shape         string // parameter grammar shown to the planner, e.g. "logs:container[:lines]"
	ParamRequired bool
	Timeout       time.Duration
	Retry         *resilience.RetryConfig
	Invoke        func(ctx context.Context, inv Invocation) (string, error)
}

// Catalog is the static registry of supported operation types. It is
// built once at process start and read-only thereafter, so it may be
// read concurrently by any number of runs without synchronization.
type Catalog struct {
	ops map[string]*OperationDescriptor
}

// NewCatalog builds the operation catalog over the given handlers.
// Mutation-type operations (restart) carry a materially higher retry
// budget than read-only queries: transient infra errors are more likely
// and more tolerable to retry on an idempotent-in-effect mutation than
// on a pure read.
func NewCatalog(h Handlers) *Catalog {
	singleAttempt := func() *resilience.RetryConfig {
		return &resilience.RetryConfig{
			MaxAttempts: 1,
			IsRetryable: transientOnly,
		}
	}
	restartRetry := &resilience.RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		IsRetryable:   transientOnly,
	}

	ops := []*OperationDescriptor{
		{
			Token:       "status",
			Shape:       "status[:filter]",
			Description: "Get container status, optionally filtered by state or name",
			Timeout:     10 * time.Second,
			Retry:       singleAttempt(),
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.ContainerStatus(ctx, inv.Spec.Param1)
			},
		},
		{
			Token:       "health",
			Shape:       "health[:container]",
			Description: "Check health of a container, or of all running containers",
			Timeout:     15 * time.Second,
			Retry:       singleAttempt(),
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.ContainerHealth(ctx, inv.Spec.Param1)
			},
		},
		{
			Token:         "logs",
			Shape:         "logs:container[:lines]",
			Description:   "Get recent log lines from a container",
			ParamRequired: true,
			Timeout:       10 * time.Second,
			Retry:         singleAttempt(),
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.ContainerLogs(ctx, inv.Spec.Param1, inv.Lines)
			},
		},
		{
			Token:         "restart",
			Shape:         "restart:container",
			Description:   "Restart a container",
			ParamRequired: true,
			Timeout:       30 * time.Second,
			Retry:         restartRetry,
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.ContainerRestart(ctx, inv.Spec.Param1)
			},
		},
		{
			Token:       "time",
			Shape:       "time",
			Description: "Get current server time",
			Timeout:     5 * time.Second,
			Retry:       singleAttempt(),
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.Time(ctx)
			},
		},
		{
			Token:         "weather",
			Shape:         "weather:city",
			Description:   "Get weather for a city",
			ParamRequired: true,
			Timeout:       10 * time.Second,
			Retry:         singleAttempt(),
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.Weather(ctx, inv.Spec.Param1)
			},
		},
		{
			Token:         "fact",
			Shape:         "fact:topic",
			Description:   "Get an interesting fact about a topic",
			ParamRequired: true,
			Timeout:       20 * time.Second,
			Retry:         singleAttempt(),
			Invoke: func(ctx context.Context, inv Invocation) (string, error) {
				return h.Fact(ctx, inv.Spec.Param1)
			},
		},
	}

	catalog := &Catalog{ops: make(map[string]*OperationDescriptor, len(ops))}
	for _, op := range ops {
		catalog.ops[op.Token] = op
	}
	return catalog
}

// transientOnly is the retry classifier shared by all descriptors:
// permanent failures (target does not exist, unsupported step) stop the
// attempt loop immediately.
func transientOnly(err error) bool {
	return !core.IsPermanent(err)
}

// Lookup resolves an operation token case-insensitively
func (c *Catalog) Lookup(token string) (*OperationDescriptor, bool) {
	op, ok := c.ops[strings.ToLower(token)]
	return op, ok
}

// Tokens returns all recognized operation tokens in sorted order
func (c *Catalog) Tokens() []string {
	tokens := make([]string, 0, len(c.ops))
	for token := range c.ops {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// FormatForLLM formats the catalog for planner prompt consumption.
// This creates a human-readable listing of every operation, its
// parameter shape and what it does, suitable for inclusion in the
// planner's system prompt.
func (c *Catalog) FormatForLLM() string {
	var b strings.Builder
	b.WriteString("Available Operations:\n")
	for _, token := range c.Tokens() {
		op := c.ops[token]
		shape := op.Shape
		if shape == "" {
			shape = op.Token
		}
		fmt.Fprintf(&b, "- %s -> %s\n", shape, op.Description)
	}
	return b.String()
}
