package bridge

import (
	"fmt"
	"strings"

	"github.com/dotcommander/poka/internal/models"
)

// auditCommands maps audit skills to the task prefix their findings carry.
// Skills marked always verify on every invocation; the rest only when the
// flag was passed.
var auditCommands = map[string]struct {
	prefix string
	always bool
	flag   string
}{
	"poka:security": {prefix: "Security:", always: true},
	"poka:a11y":     {prefix: "A11y:", always: true},
	"poka:test":     {prefix: "Test:", flag: "--audit"},
	"poka:observe":  {prefix: "Observability:", flag: "--audit"},
	"poka:arch":     {prefix: "Arch:", flag: "--audit"},
}

// handleSkillComplete verifies that an audit skill created the follow-up
// tasks its findings called for.
func (rt *Runtime) handleSkillComplete(env Envelope) *Result {
	var in struct {
		Skill string `json:"skill"`
		Args  string `json:"args"`
	}
	decodeInto(env.ToolInput, &in)

	cfg, ok := auditCommands[in.Skill]
	if !ok {
		return skip(fmt.Sprintf("skill %s has no post-command hooks", in.Skill))
	}
	if !cfg.always && !strings.Contains(in.Args, cfg.flag) {
		return skip(fmt.Sprintf("skill %s requires %s flag for task verification", in.Skill, cfg.flag))
	}

	results := []models.ActionOutcome{
		rt.Runner.Run("verify-tasks", nil, map[string]string{
			"SKILL_NAME":  in.Skill,
			"SKILL_ARGS":  in.Args,
			"TASK_PREFIX": cfg.prefix,
		}),
	}

	return &Result{
		HooksRun: []string{"post-command"},
		Results:  results,
		Summary:  summarize(results),
	}
}
