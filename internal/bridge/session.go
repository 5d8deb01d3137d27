package bridge

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dotcommander/poka/internal/app"
	"github.com/dotcommander/poka/internal/models"
	"github.com/dotcommander/poka/internal/state"
	"github.com/dotcommander/poka/internal/store"
)

// handleSessionStart resets the token ledger, runs the pre-session actions,
// and recovers from a crashed predecessor when one is detected.
func (rt *Runtime) handleSessionStart() *Result {
	state.ResetTokenLedger(app.TokenUsagePath(rt.ProjectDir))

	var results []models.ActionOutcome
	results = append(results, rt.Runner.Run("verify-clean", nil, nil))

	if mode := os.Getenv(app.EnvWorkMode); mode == app.WorkModeUnattended {
		results = append(results, rt.Runner.Run("pre-flight", nil, map[string]string{
			"WORK_MODE": mode,
		}))
	}

	if staleTasks, chainID := rt.detectStaleSession(); len(staleTasks) > 0 {
		results = append(results, rt.Runner.Run("recover", nil, map[string]string{
			"STALE_TASKS": strings.Join(staleTasks, ","),
			"CHAIN_ID":    chainID,
		}))
		if _, err := store.AppendEvent(rt.DB, models.EventKindRecovery, "SessionStart", "", "",
			"stale tasks: "+strings.Join(staleTasks, ","), ""); err != nil {
			slog.Default().Warn("recovery journal write failed", "error", err)
		}
	}

	return &Result{
		HooksRun: []string{"pre-session"},
		Results:  results,
		Summary:  summarize(results),
	}
}

// detectStaleSession looks for the crash signature: an active chain record
// alongside tasks still marked in_progress. A clean session end would have
// released both.
func (rt *Runtime) detectStaleSession() ([]string, string) {
	chain := state.LoadChain(app.ChainStatePath(rt.ProjectDir))
	if !chain.Active() || rt.DB == nil {
		return nil, ""
	}

	ids, err := store.ListTaskIDsByStatus(rt.DB, models.TaskStatusInProgress)
	if err != nil {
		slog.Default().Warn("stale session check failed", "error", err)
		return nil, ""
	}
	return ids, chain.ChainID
}

// handleSessionEnd runs the post-session actions and drives session
// chaining: the session-chain action decides whether another session
// follows, and its decision mutates or deletes the chain record.
func (rt *Runtime) handleSessionEnd() *Result {
	var results []models.ActionOutcome
	results = append(results, rt.Runner.Run("sync", nil, nil))
	results = append(results, rt.Runner.Run("session-summary", nil, nil))

	chainPath := app.ChainStatePath(rt.ProjectDir)
	chain := state.LoadChain(chainPath)

	var chainData map[string]any
	if chain.Active() {
		if err := rt.Notes.AppendChainLearning(chain.ChainID, chain.ChainIndex, chain.ScopeType, chain.ScopeID,
			chain.TasksCompleted, rt.Tracking.LearningMaxEntries, rt.Now()); err != nil {
			slog.Default().Warn("chain learnings write failed", "error", err)
		}

		headless := app.LoadProjectConfig(rt.ProjectDir).Headless
		outcome := rt.Runner.Run("session-chain", nil, map[string]string{
			"CHAIN_ID":        chain.ChainID,
			"CHAIN_INDEX":     strconv.Itoa(chain.ChainIndex),
			"MAX_CHAINS":      strconv.Itoa(headless.MaxChains),
			"SCOPE_TYPE":      chain.ScopeType,
			"SCOPE_ID":        chain.ScopeID,
			"TASKS_COMPLETED": strconv.Itoa(chain.TasksCompleted),
			"CHAIN_AUDITED":   strconv.FormatBool(chain.AuditPassed),
			"REPORT_MODE":     headless.Report,
			"NOTIFY_MODE":     headless.Notify,
		})
		results = append(results, outcome)

		// The coordinator's decision arrives as JSON on the action's
		// stdout. Unparseable output leaves the chain record alone.
		if outcome.Output != "" {
			if err := json.Unmarshal([]byte(outcome.Output), &chainData); err != nil {
				chainData = nil
			}
		}
		if chainData != nil {
			action, _ := chainData["action"].(string)
			switch action {
			case "continue":
				chain.ChainIndex++
				state.SaveChain(chainPath, chain)
			case "audit_pending":
				chain.AuditPending = true
				state.SaveChain(chainPath, chain)
			case "complete", "limit_reached":
				state.DeleteChain(chainPath)
			}
		}
	}

	var tokens *state.TokenLedger
	if ledger := state.LoadTokenLedger(app.TokenUsagePath(rt.ProjectDir)); ledger.TotalAgents > 0 {
		tokens = &ledger
	}

	return &Result{
		HooksRun: []string{"post-session"},
		Results:  results,
		Summary:  summarize(results),
		Chain:    chainData,
		Tokens:   tokens,
	}
}

// recordAgentTokens updates the session token ledger from a completed
// subagent call. Runs for every Task completion, review or not.
func (rt *Runtime) recordAgentTokens(env Envelope) {
	var in struct {
		SubagentType string `json:"subagent_type"`
		Description  string `json:"description"`
	}
	decodeInto(env.ToolInput, &in)
	if in.SubagentType == "" {
		in.SubagentType = "unknown"
	}

	usage := state.ParseAgentUsage(in.SubagentType, in.Description, resultText(env.ToolResponse))
	state.RecordAgentUsage(app.TokenUsagePath(rt.ProjectDir), usage)
}
