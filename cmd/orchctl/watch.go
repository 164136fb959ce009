package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the service and watch jobs from a terminal dashboard",
		Long: `watch starts the same HTTP API, async worker, and batch scheduler as
serve, in this process, then foregrounds a Bubble Tea dashboard that polls
the same in-process Job Store the worker updates. It does not attach to a
separately-running serve instance: the Job Store lives only in the memory
of whichever process created it, so a dashboard that watches a running
deployment must run inside that deployment's process instead of talking
to it over the network.`,
		RunE: runWatch,
	}
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := runWatchService(cmd, args); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
