package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gantry/internal/batch"
	"gantry/internal/config"
	"gantry/internal/queue"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect and manage batch jobs",
	}

	batchCmd.AddCommand(newBatchListCommand(ctx))
	batchCmd.AddCommand(newBatchShowCommand(ctx))
	batchCmd.AddCommand(newBatchCancelCommand(ctx))

	return batchCmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				coordinator := batch.NewCoordinator(store, cfg, nil)
				jobs, err := coordinator.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.Name,
						string(job.Status),
						fmt.Sprintf("%d/%d", job.ProcessedCount, job.TotalCount),
						strconv.Itoa(job.SuccessCount),
						strconv.Itoa(job.FailedCount),
						job.CreatedAt.Local().Format(time.DateTime),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Progress", "Success", "Failed", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batchID>",
		Short: "Show one batch with its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				coordinator := batch.NewCoordinator(store, cfg, nil)
				status, err := coordinator.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				job := status.Job
				fmt.Fprintf(out, "Batch:     %s\n", job.ID)
				if job.Name != "" {
					fmt.Fprintf(out, "Name:      %s\n", job.Name)
				}
				fmt.Fprintf(out, "Status:    %s\n", job.Status)
				fmt.Fprintf(out, "Progress:  %d/%d (success %d, failed %d)\n",
					job.ProcessedCount, job.TotalCount, job.SuccessCount, job.FailedCount)
				fmt.Fprintf(out, "Priority:  %s\n", job.Priority)
				fmt.Fprintf(out, "Parallel:  %d\n", job.MaxConcurrent)
				if job.ErrorSummary != "" {
					fmt.Fprintf(out, "Errors:    %s\n", job.ErrorSummary)
				}

				if len(status.Entries) == 0 {
					return nil
				}
				rows, err := buildQueueListRows(cmd, store, status.Entries)
				if err != nil {
					return err
				}
				table := renderTable(
					[]string{"ID", "Release", "Stage", "Queue", "Priority", "Batch", "Attempts", "Added"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func newBatchCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batchID>",
		Short: "Cancel every non-terminal member of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				coordinator := batch.NewCoordinator(store, cfg, nil)
				cancelled, err := coordinator.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %d member(s)\n", cancelled)
				return nil
			})
		},
	}
}
