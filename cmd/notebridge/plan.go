package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notebridge/internal/bridge"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a sync would do, without changing anything",
	Long: `Plan lists both stores, matches notes by identity and prints the
resulting actions with the reason for each one. Nothing is written.`,
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
		bridge.PrintPlan(os.Stdout, plan)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
