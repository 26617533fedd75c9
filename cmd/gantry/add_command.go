package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gantry/internal/batch"
	"gantry/internal/config"
	"gantry/internal/queue"
)

var mediaFileExtensions = map[string]struct{}{
	".mkv": {},
	".mp4": {},
	".avi": {},
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var batchName string
	var priorityFlag string
	var maxConcurrent int
	var copyToStaging bool
	var skipApproval bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Add media files to the processing queue as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority := queue.PriorityNormal
			if strings.TrimSpace(priorityFlag) != "" {
				parsed, ok := queue.ParsePriority(priorityFlag)
				if !ok {
					return fmt.Errorf("unknown priority %q (use low, normal, or high)", priorityFlag)
				}
				priority = parsed
			}

			paths := make([]string, 0, len(args))
			for _, arg := range args {
				absPath, err := validateMediaPath(arg)
				if err != nil {
					return err
				}
				paths = append(paths, absPath)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				coordinator := batch.NewCoordinator(store, cfg, nil)
				job, err := coordinator.Submit(cmd.Context(), paths, batch.SubmitOptions{
					Name:          batchName,
					Priority:      priority,
					MaxConcurrent: maxConcurrent,
					SkipApproval:  skipApproval,
					CopyToStaging: copyToStaging,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued batch %s with %d file(s)\n", job.ID, job.TotalCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&batchName, "name", "n", "", "Batch display name")
	cmd.Flags().StringVarP(&priorityFlag, "priority", "p", "", "Queue priority (low, normal, high)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Concurrent members for this batch (0 uses the configured default)")
	cmd.Flags().BoolVar(&copyToStaging, "copy", false, "Copy sources into the staging directory before queueing")
	cmd.Flags().BoolVar(&skipApproval, "skip-approval", false, "Skip the manual approval gate for this batch")
	return cmd
}

func validateMediaPath(arg string) (string, error) {
	absPath, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file does not exist: %s", absPath)
		}
		return "", fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}

	ext := strings.ToLower(filepath.Ext(info.Name()))
	if _, ok := mediaFileExtensions[ext]; !ok {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return absPath, nil
}
