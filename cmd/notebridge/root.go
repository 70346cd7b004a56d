package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notebridge/internal/bridge"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notebridge",
	Short: "Two-way sync between a Joplin instance and an Obsidian-style vault",
	Long: `Notebridge reconciles notes between Joplin (over its data API) and a
plain Markdown vault on disk. Notes are matched by an embedded identity
stamp, per-folder rules control sync direction, and a layered scanner
finds duplicate notes within a store.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", bridge.DefaultConfigName, "Path to the config file")
}

func loadConfig() bridge.Config {
	cfg, err := bridge.LoadConfig(configPath)
	if err != nil {
		fatal("Failed to load configuration", err)
	}
	return cfg
}
