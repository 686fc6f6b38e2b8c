package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old completed queue entries",
	Long:  "Deletes completed sync queue entries older than the retention window. Pending, processing and failed entries are never touched.",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0,
		"Retention window in days (default: configured sync.retention_days)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	db, queue, cfg, err := openQueue()
	if err != nil {
		return err
	}
	defer db.Close()

	days := cleanupDays
	if days == 0 {
		days = cfg.Sync.RetentionDays
	}
	if days < 1 {
		return fmt.Errorf("days must be >= 1")
	}

	removed, err := queue.PurgeCompletedOlderThan(cmd.Context(), days)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d completed entries older than %d days\n", removed, days)
	return nil
}
