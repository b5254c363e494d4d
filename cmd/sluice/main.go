package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "Sluice - feedback-driven password cracking orchestrator",
	Long: `Sluice drives GRAVEL hashes through Stage 1 (remote dedup), Stage 2
(ordered attack scheduling) and the Feedback Analyzer, one SAND batch at a
time, resuming purely from its state store after a crash.`,
	RunE: runOrchestrate,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to sluice.yaml (defaults layered under env overrides)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().Int("batch", 0, "Run a single batch by number")
	rootCmd.Flags().Int("through", 0, "With --batch, run a contiguous range through this batch number")
	rootCmd.Flags().Bool("next", false, "Run the next unprocessed batch")
	rootCmd.Flags().Int("count", 1, "With --next, run this many batches in a row, re-resolving \"next\" after each")
	rootCmd.Flags().Bool("resume", false, "Print the step each batch resumes from (every run resumes from the step its state implies)")
	rootCmd.Flags().Bool("dry-run", false, "Print the planned steps for the selected batch(es) and run none of them (the oracle cache file is still opened, and created if absent)")
	rootCmd.Flags().Bool("status", false, "Print a read-only progress report and exit")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(reviewCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
