package cmd

import (
	"github.com/spf13/cobra"

	"github.com/studyflow/studyflow/internal/app"
	"github.com/studyflow/studyflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "studyflow",
	Short: "Adaptive study session engine",
	Long: "Studyflow schedules spaced-repetition study sessions: it ranks and mixes\n" +
		"card candidates across strategies, serves them under a time budget, and\n" +
		"adapts its strategy weights from recorded session outcomes.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides STUDYFLOW_DB env var)")
	rootCmd.PersistentFlags().String("course", "", "Course id (overrides STUDYFLOW_COURSE)")
	rootCmd.PersistentFlags().String("user", "", "User id (overrides STUDYFLOW_USER)")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildApp loads config, applies flag overrides and opens the engine.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg := config.Load()
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DBPath = p
	}
	if c, _ := cmd.Flags().GetString("course"); c != "" {
		cfg.CourseID = c
	}
	if u, _ := cmd.Flags().GetString("user"); u != "" {
		cfg.UserID = u
	}
	return app.New(cfg)
}
