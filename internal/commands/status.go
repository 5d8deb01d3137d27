package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/poka/internal/app"
	"github.com/dotcommander/poka/internal/output"
	"github.com/dotcommander/poka/internal/state"
	"github.com/dotcommander/poka/internal/store"
)

// NewStatusCmd creates the status command: a quick health report over the
// store, the chain record, and the session token ledger.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bridge status: store health, chain state, token usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type chainInfo struct {
				Active         bool   `json:"active"`
				ChainID        string `json:"chain_id,omitempty"`
				ChainIndex     int    `json:"chain_index,omitempty"`
				ScopeType      string `json:"scope_type,omitempty"`
				ScopeID        string `json:"scope_id,omitempty"`
				TasksCompleted int    `json:"tasks_completed,omitempty"`
				AuditPending   bool   `json:"audit_pending,omitempty"`
			}
			type storeInfo struct {
				Path          string         `json:"path"`
				SchemaCurrent int64          `json:"schema_current"`
				SchemaLatest  int64          `json:"schema_latest"`
				EventsByKind  map[string]int `json:"events_by_kind,omitempty"`
				Error         string         `json:"error,omitempty"`
			}
			type result struct {
				ProjectDir string    `json:"project_dir"`
				ActionsDir string    `json:"actions_dir"`
				Store      storeInfo `json:"store"`
				Chain      chainInfo `json:"chain"`
				Tokens     any       `json:"tokens,omitempty"`
			}

			projectDir := app.ProjectDir()
			resp := result{
				ProjectDir: projectDir,
				ActionsDir: app.ActionsDir(projectDir),
			}

			dbPath, err := app.GetDBPath(projectDir)
			if err != nil {
				resp.Store.Error = err.Error()
			} else {
				resp.Store.Path = dbPath
				if _, statErr := os.Stat(dbPath); statErr == nil {
					if dbErr := withDB(func(db *DB) error {
						current, latest, verErr := store.SchemaVersion(db)
						if verErr != nil {
							return verErr
						}
						resp.Store.SchemaCurrent = current
						resp.Store.SchemaLatest = latest

						counts, countErr := store.CountEventsByKind(db)
						if countErr != nil {
							return countErr
						}
						resp.Store.EventsByKind = counts
						return nil
					}); dbErr != nil {
						resp.Store.Error = "store query failed"
					}
				}
			}

			if chain := state.LoadChain(app.ChainStatePath(projectDir)); chain.Active() {
				resp.Chain = chainInfo{
					Active:         true,
					ChainID:        chain.ChainID,
					ChainIndex:     chain.ChainIndex,
					ScopeType:      chain.ScopeType,
					ScopeID:        chain.ScopeID,
					TasksCompleted: chain.TasksCompleted,
					AuditPending:   chain.AuditPending,
				}
			}

			if ledger := state.LoadTokenLedger(app.TokenUsagePath(projectDir)); ledger.TotalAgents > 0 {
				resp.Tokens = ledger
			}

			return output.PrintSuccess(resp)
		},
	}
}
