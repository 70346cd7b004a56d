package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notebridge/internal/bridge"
	"github.com/aretw0/notebridge/pkg/rules"
)

var (
	applyDeletes bool
	interactive  bool
	direction    string
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile Joplin and the vault",
	Long: `Sync builds a plan and applies it: new notes are copied across,
modified notes propagate in the direction the rules allow, and conflicts
resolve by the configured policy. Deletions are only ever candidates
unless --apply-deletes is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		engine, release, err := bridge.NewEngine(cfg, slog.Default())
		if err != nil {
			fatal("Failed to start", err)
		}
		defer release()

		plan, err := engine.BuildPlan(cmd.Context())
		if err != nil {
			// fatal exits without unwinding, so the lock is dropped first.
			release()
			fatal("Failed to build plan", err)
		}
		if direction != "" {
			only := rules.Direction(direction)
			if only != rules.DirectionJoplinToVault && only != rules.DirectionVaultToJoplin {
				release()
				fatal("Invalid direction", fmt.Errorf("--direction must be %s or %s", rules.DirectionJoplinToVault, rules.DirectionVaultToJoplin))
			}
			bridge.RestrictDirection(plan, only)
		}

		executor := &bridge.Executor{
			Engine:       engine,
			ApplyDeletes: applyDeletes,
		}
		if interactive {
			confirm, closeConfirm, err := bridge.InteractiveConfirm()
			if err != nil {
				release()
				fatal("Failed to start interactive mode", err)
			}
			defer closeConfirm()
			executor.Confirm = confirm
		}

		summary, err := executor.Execute(cmd.Context(), plan)
		if err != nil {
			release()
			fatal("Sync aborted", err)
		}
		bridge.PrintSummary(os.Stdout, summary)
		if summary.Failed > 0 {
			// os.Exit skips the deferred release; save what did apply and
			// drop the lock before reporting failure.
			release()
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&applyDeletes, "apply-deletes", false, "Delete notes whose counterpart was removed")
	syncCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Confirm each action before applying it")
	syncCmd.Flags().StringVar(&direction, "direction", "", "Only apply one flow (joplin-to-vault or vault-to-joplin)")
	rootCmd.AddCommand(syncCmd)
}
