package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/wire"
)

var queueNames = []string{core.QueueBuild, core.QueueScreenshotDiff, core.QueueBuildNotification}

var pushCmd = &cobra.Command{
	Use:   "push <queue> <id>...",
	Short: "Publishes job ids on a queue",
	Long: `Publishes job ids on one of the build, screenshotDiff or
buildNotification queues. The job status is not touched.`,
	Example: "  warden-cli push build 42 43",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		queue, ids, err := parseJobArgs(args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		tk, cleanup, err := wire.InitializeToolkit(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize toolkit: %w", err)
		}
		defer cleanup()

		if err := tk.Queue.Push(ctx, queue, ids...); err != nil {
			return err
		}
		successColor.Printf("pushed %d job(s) to %s\n", len(ids), queue)
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <queue> <id>...",
	Short: "Resets errored jobs to pending and pushes them again",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		queue, ids, err := parseJobArgs(args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		tk, cleanup, err := wire.InitializeToolkit(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize toolkit: %w", err)
		}
		defer cleanup()

		n, err := tk.Sweeper.Replay(ctx, queue, ids...)
		if err != nil {
			return err
		}
		if n < len(ids) {
			warnColor.Printf("%d of %d job(s) were not errored and were left alone\n", len(ids)-n, len(ids))
		}
		successColor.Printf("replayed %d job(s) on %s\n", n, queue)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Requeues jobs stuck in progress once",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()
		tk, cleanup, err := wire.InitializeToolkit(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize toolkit: %w", err)
		}
		defer cleanup()

		n, err := tk.Sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		successColor.Printf("requeued %d stalled job(s)\n", n)
		return nil
	},
}

func parseJobArgs(args []string) (string, []int64, error) {
	queue := args[0]
	if !slices.Contains(queueNames, queue) {
		return "", nil, fmt.Errorf("unknown queue %q, expected one of %v", queue, queueNames)
	}
	ids := make([]int64, 0, len(args)-1)
	for _, a := range args[1:] {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return "", nil, fmt.Errorf("invalid job id %q", a)
		}
		ids = append(ids, id)
	}
	return queue, ids, nil
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(pushCmd, replayCmd, sweepCmd)
}
