package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/arbiter/internal/logger"
	"github.com/rafaeljc/arbiter/internal/outcomes"
)

func newAdvanceCmd(a *app) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "advance RUN_ID OUTCOME_ID",
		Short: "Report an advance created for the subject of a run",
		Long: `Link a created advance to the successful experiment visits of a run and
let each experiment consume its quota.

With --enqueue the event is pushed to the outcome queue and applied later by
the worker. Without it the event is applied immediately.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			ctx := logger.WithContext(cmd.Context(), a.logger)
			runID, outcomeID := args[0], args[1]

			if enqueue {
				client, err := a.redisClient(ctx)
				if err != nil {
					return err
				}
				queue := outcomes.NewQueue(client, a.cfg.Worker.QueueKey)
				if err := queue.Enqueue(ctx, runID, outcomeID); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "queued %s|%s on %s\n", runID, outcomeID, queue.Key())
				return err
			}

			engine, _, err := a.engine(ctx)
			if err != nil {
				return err
			}
			if err := engine.AdvanceCreated(ctx, runID, outcomeID); err != nil {
				return fmt.Errorf("advance failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "linked %s to run %s\n", outcomeID, runID)
			return err
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "push the event to the outcome queue instead of applying it")
	return cmd
}
