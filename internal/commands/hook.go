package commands

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/poka/internal/app"
	"github.com/dotcommander/poka/internal/bridge"
	"github.com/dotcommander/poka/internal/commands/hookcmd"
)

// NewHookCmd creates the hook parent command.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook handler and installers for the coding agent",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(hookcmd.NewInstallCmd())
	cmd.AddCommand(hookcmd.NewUninstallCmd())

	// The handler is called by the hook system, not agents directly.
	// Hidden from help output to reduce command surface noise.
	handle := newHookHandleCmd()
	handle.Hidden = true
	cmd.AddCommand(handle)

	return cmd
}

// newHookHandleCmd creates the single hook entry point. Every registered
// event runs the same command; routing happens on the envelope's contents.
func newHookHandleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handle",
		Short: "Handle one hook event from stdin",
		Long: `Reads one hook event envelope from stdin, routes it to the matching
handler, runs the project's guard-rail actions, and writes the hook
protocol response on stdout.

Register via 'poka hook install'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bridge.DecodeEnvelope(os.Stdin)
			if err != nil {
				// Malformed input is the one loud failure: the caller sent
				// garbage and must know. Everything downstream degrades quietly.
				_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
				os.Exit(2)
			}

			projectDir := app.ProjectDir()

			// The store is optional. A hook with no reachable database still
			// runs every action; only store-backed features go dormant.
			var rt *bridge.Runtime
			db, closeDB, dbErr := openDB()
			if dbErr != nil {
				slog.Default().Warn("task store unavailable", "error", dbErr)
				rt = bridge.NewRuntime(projectDir, nil)
			} else {
				defer closeDB()
				rt = bridge.NewRuntime(projectDir, db)
			}

			result := rt.Dispatch(env)
			return bridge.WriteResponse(os.Stdout, env.HookEventName, result)
		},
	}
}
