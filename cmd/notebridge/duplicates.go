package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notebridge/internal/bridge"
	"github.com/aretw0/notebridge/pkg/dedup"
	"github.com/aretw0/notebridge/pkg/note"
)

var (
	dupStore     string
	dupAutoClean bool
	dupKeep      string
)

// duplicatesCmd represents the duplicates command
var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find duplicate notes within one store",
	Long: `Duplicates scans a single store for notes that are really the same
note: shared identity stamps, identical normalized content, and
near-identical content under similar titles. With --auto-clean the
redundant members of exact groups are trashed, keeping the newest;
similarity-based groups are always report-only.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		src := note.ParseSource(dupStore)
		if src != note.SourceJoplin && src != note.SourceVault {
			fatal("Invalid store", fmt.Errorf("--store must be joplin or vault, got %q", dupStore))
		}

		engine, release, err := bridge.NewEngine(cfg, slog.Default())
		if err != nil {
			fatal("Failed to start", err)
		}
		defer release()

		opts := dedup.Options{
			TitleThreshold: cfg.Duplicates.TitleThreshold,
			BodyThreshold:  cfg.Duplicates.BodyThreshold,
		}
		groups, err := engine.ScanDuplicates(cmd.Context(), src, opts)
		if err != nil {
			// fatal exits without unwinding, so the lock is dropped first.
			release()
			fatal("Duplicate scan failed", err)
		}
		bridge.PrintGroups(os.Stdout, groups)

		if dupAutoClean {
			keep := bridge.Keep(dupKeep)
			if keep != bridge.KeepNewest && keep != bridge.KeepOldest {
				release()
				fatal("Invalid keep strategy", fmt.Errorf("--keep must be newest or oldest, got %q", dupKeep))
			}
			removed, err := engine.ResolveDuplicates(cmd.Context(), src, groups, keep)
			if err != nil {
				release()
				fatal("Auto-clean failed", err)
			}
			fmt.Printf("Removed %d exact duplicate(s).\n", removed)
		}
	},
}

func init() {
	duplicatesCmd.Flags().StringVar(&dupStore, "store", "vault", "Store to scan (joplin or vault)")
	duplicatesCmd.Flags().BoolVar(&dupAutoClean, "auto-clean", false, "Trash redundant members of exact duplicate groups")
	duplicatesCmd.Flags().StringVar(&dupKeep, "keep", string(bridge.KeepNewest), "Which member of an exact group survives (newest or oldest)")
	rootCmd.AddCommand(duplicatesCmd)
}
