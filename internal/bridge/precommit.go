package bridge

import (
	"strings"

	"github.com/dotcommander/poka/internal/models"
)

// handlePreCommit gates git commit and git add commands behind the lint and
// reference-size checks. Only execution faults block; lint findings that
// exit nonzero surface as warnings and let the commit proceed.
func (rt *Runtime) handlePreCommit(env Envelope) *Result {
	var in struct {
		Command string `json:"command"`
	}
	decodeInto(env.ToolInput, &in)

	if !strings.Contains(in.Command, "git commit") && !strings.Contains(in.Command, "git add") {
		return skip("not a commit command")
	}

	results := []models.ActionOutcome{
		rt.Runner.Run("lint", nil, nil),
		rt.Runner.Run("check-ref-sizes", nil, nil),
	}

	var failing []string
	for _, r := range results {
		if r.Status == models.ActionError {
			failing = append(failing, r.Action)
		}
	}

	reason := ""
	if len(failing) > 0 {
		reason = strings.Join(failing, ", ") + " failed"
	}

	return &Result{
		HooksRun: []string{"pre-commit"},
		Results:  results,
		Block:    len(failing) > 0,
		Reason:   reason,
	}
}
