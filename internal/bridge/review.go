package bridge

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/dotcommander/poka/internal/models"
)

// handleReviewComplete inspects finished review subagents. A failed review
// is tracked for recurring patterns and handed to the project's
// post-review-fail hook, whose JSON output tells the agent what remediation
// to take (AUTO, SUGGEST, or LOGGED).
func (rt *Runtime) handleReviewComplete(env Envelope) *Result {
	var in struct {
		SubagentType string `json:"subagent_type"`
		Description  string `json:"description"`
	}
	decodeInto(env.ToolInput, &in)

	description := strings.ToLower(in.Description)
	isSpecReview := strings.Contains(in.SubagentType, "spec-review") || strings.Contains(description, "spec review")
	isQualityReview := strings.Contains(in.SubagentType, "quality-review") || strings.Contains(description, "quality review")
	if !isSpecReview && !isQualityReview {
		return skip("not a review task")
	}

	agentOutput := resultText(env.ToolResponse)
	if strings.Contains(agentOutput, ": PASS") {
		return skip("review passed")
	}
	if !strings.Contains(agentOutput, ": FAIL") {
		return skip("could not determine review result")
	}

	reviewType := "quality-review"
	if isSpecReview {
		reviewType = "spec-review"
	}

	taskID := currentTaskID()
	if taskID == "" {
		taskID = "unknown"
	}

	// Failure details flow into shell environments downstream; cap and
	// scrub rather than reject, the diagnostic text is the payload here.
	failureDetails := ScrubText(truncate(agentOutput, 2000))

	newlyRecorded := rt.tracker().Track(failureDetails, taskID, rt.Now())

	hookPath := filepath.Join(rt.ProjectDir, "hooks", "post-review-fail.sh")
	outcome := rt.Runner.RunAt(hookPath, map[string]string{
		"TASK_ID":         taskID,
		"FAILURE_DETAILS": failureDetails,
		"FAILURE_SOURCE":  reviewType,
	})

	result := &Result{
		HooksRun:          []string{"post-review-fail"},
		TaskID:            taskID,
		ReviewType:        reviewType,
		KaizenAction:      "LOGGED",
		Results:           []models.ActionOutcome{outcome},
		RecurringFailures: newlyRecorded,
	}

	if outcome.Status == models.ActionSkipped {
		result.Summary = "Review failed, hook not found at " + hookPath
		return result
	}

	// The hook reports its decision as JSON on stdout.
	var decision struct {
		Action  string          `json:"action"`
		FixTask json.RawMessage `json:"fix_task"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal([]byte(outcome.Output), &decision); err != nil {
		decision.Action = "LOGGED"
		decision.Message = "failed to parse hook output"
	}
	if decision.Action == "" {
		decision.Action = "LOGGED"
	}

	result.KaizenAction = decision.Action
	result.KaizenMessage = decision.Message
	if len(decision.FixTask) > 0 {
		var fixTask map[string]any
		if err := json.Unmarshal(decision.FixTask, &fixTask); err == nil {
			result.FixTask = fixTask
		}
	}
	result.Summary = "Review failed, kaizen action: " + decision.Action
	return result
}
