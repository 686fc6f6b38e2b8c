package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print sync queue statistics",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, queue, _, err := openQueue()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := queue.Stats(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
