package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notebridge/internal/bridge"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Init writes a commented notebridge.yaml in the current directory (or
at --config) to fill in with your Joplin token and vault path. It never
overwrites an existing file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := bridge.WriteStarterConfig(configPath); err != nil {
			fatal("Failed to write config", err)
		}
		fmt.Println("Wrote", configPath)
		fmt.Println("Fill in joplin.token and vault.path before running 'notebridge sync'.")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
