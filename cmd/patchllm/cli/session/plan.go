package session

import (
	"regexp"
	"strings"
)

var planStepRe = regexp.MustCompile(`^\s*\d+\.\s+(.*)`)

// ParsePlan extracts numbered steps from a model reply. Lines that do not
// match the "N. step" shape are ignored, so surrounding prose is harmless.
func ParsePlan(reply string) []PlanStep {
	var steps []PlanStep
	for _, line := range strings.Split(reply, "\n") {
		m := planStepRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		steps = append(steps, PlanStep{Instruction: text})
	}
	return steps
}
