package orchestration

import "strings"

// ParsePlan converts a raw plan string into an ordered sequence of
// typed operation specs. Segments are comma-separated; each segment is
// `type[:param1[:param2]]`. Whitespace around segments is trimmed and
// empty segments are dropped, so a malformed or empty plan yields a
// shorter (possibly empty) result rather than an error.
//
// Parameter semantics are not validated here: param2 stays textual and
// numeric coercion happens at dispatch time in the StepExecutor.
func ParsePlan(planText string) []OperationSpec {
	segments := strings.Split(planText, ",")
	plan := make([]OperationSpec, 0, len(segments))

	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		parts := strings.SplitN(segment, ":", 3)
		spec := OperationSpec{Type: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			spec.Param1 = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			spec.Param2 = strings.TrimSpace(parts[2])
		}
		plan = append(plan, spec)
	}

	return plan
}
