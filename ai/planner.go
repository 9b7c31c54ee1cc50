package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsflow/opsflow/core"
	"github.com/opsflow/opsflow/orchestration"
)

const plannerPromptTemplate = `You are an infrastructure operations agent. Analyze the user request and return a comma-separated list of operations.

%s
Examples:
"restart nginx and check weather in London" -> "restart:nginx, weather:London"
"is redis healthy?"                         -> "health:redis"
"what time is it and show logs for api"     -> "time, logs:api"

Return ONLY the comma-separated plan. No explanations.`

// LLMPlanner converts natural-language tasks into plan strings using an
// AI client. It implements orchestration.Planner; retry, timeout and
// the fallback plan are the run controller's responsibility.
type LLMPlanner struct {
	client       core.AIClient
	model        string
	systemPrompt string
	logger       core.Logger
}

// NewLLMPlanner creates a planner over the given AI client. The
// catalog's operation listing is baked into the system prompt so the
// planner only proposes operations the catalog can dispatch.
func NewLLMPlanner(client core.AIClient, model string, catalog *orchestration.Catalog) *LLMPlanner {
	return &LLMPlanner{
		client:       client,
		model:        model,
		systemPrompt: fmt.Sprintf(plannerPromptTemplate, catalog.FormatForLLM()),
		logger:       &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider
func (p *LLMPlanner) SetLogger(logger core.Logger) {
	if logger == nil {
		p.logger = &core.NoOpLogger{}
	} else {
		p.logger = logger
	}
}

// Plan asks the model for a plan string
func (p *LLMPlanner) Plan(ctx context.Context, task string) (string, error) {
	resp, err := p.client.GenerateResponse(ctx, task, &core.AIOptions{
		Model:        p.model,
		Temperature:  0.1,
		MaxTokens:    200,
		SystemPrompt: p.systemPrompt,
	})
	if err != nil {
		return "", err
	}

	plan := sanitizePlan(resp.Content)
	p.logger.Info("Planner produced plan", map[string]interface{}{
		"operation": "plan_generated",
		"plan":      plan,
		"model":     resp.Model,
		"tokens":    resp.Usage.TotalTokens,
	})
	return plan, nil
}

// sanitizePlan strips the decoration chatty models wrap around the
// plan: code fences, surrounding quotes, anything past the first line.
func sanitizePlan(raw string) string {
	plan := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(plan, "```"); ok {
		plan = after
		// An opening fence may carry a language tag on its own line,
		// as in "```text\nstatus". Skip the tag line so the plan below
		// it survives. A bare operation on the fence line is not a tag.
		if idx := strings.IndexByte(plan, '\n'); idx >= 0 && isFenceTag(strings.TrimSpace(plan[:idx])) {
			plan = plan[idx+1:]
		}
	}
	plan = strings.TrimSuffix(plan, "```")
	plan = strings.TrimSpace(plan)
	if idx := strings.IndexByte(plan, '\n'); idx >= 0 {
		plan = strings.TrimSpace(plan[:idx])
	}
	plan = strings.Trim(plan, `"'`)
	return strings.TrimSpace(plan)
}

func isFenceTag(line string) bool {
	switch strings.ToLower(line) {
	case "", "text", "plaintext", "plain", "txt", "markdown", "md":
		return true
	}
	return false
}

// Ensure LLMPlanner implements orchestration.Planner
var _ orchestration.Planner = (*LLMPlanner)(nil)
