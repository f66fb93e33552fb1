package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neotracker/neotracker/internal/ingest"
)

var triggerFlags ingest.Params

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Enqueue an ingestion task for the worker",
	RunE:  runTrigger,
}

func init() {
	addParamFlags(triggerCmd, &triggerFlags)
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, _ []string) error {
	ops, err := ensureQueueOps()
	if err != nil {
		return err
	}
	info, err := ops.Trigger(cmd.Context(), defaultParams(triggerFlags))
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	cmd.Printf("enqueued %s on queue %s\n", info.ID, info.Queue)
	return nil
}
