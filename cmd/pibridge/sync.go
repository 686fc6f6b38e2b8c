package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pibridge/pibridge/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the outbox queue once and exit",
	Long:  "Runs a single drain pass against the configured backend without starting the server.",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	db, queue, cfg, err := openQueue()
	if err != nil {
		return err
	}
	defer db.Close()

	// Reconcile first so entries stranded by a crashed server process
	// are eligible for this pass.
	if _, err := queue.RecoverStuck(cmd.Context()); err != nil {
		return err
	}

	backend := syncer.NewHTTPBackend(cfg.Backend.URL, cfg.Backend.AgentID)
	engine := syncer.NewEngine(queue, backend,
		syncer.WithBatchSize(cfg.Sync.BatchSize),
		syncer.WithMaxAttempts(cfg.Sync.MaxAttempts),
	)

	result, err := engine.Drain(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
