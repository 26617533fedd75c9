package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gantry/internal/config"
	"gantry/internal/preflight"
	"gantry/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment checks and queue health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				lines := renderSectionHeader("Environment", colorize)
				results := preflight.RunAll(cmd.Context(), cfg)
				for _, result := range results {
					kind := statusOK
					if !result.Passed {
						kind = statusError
					}
					lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
				if preflight.AllPassed(results) {
					lines = append(lines, renderStatusLine("Preflight", statusOK, "all checks passed", colorize))
				} else {
					lines = append(lines, renderStatusLine("Preflight", statusWarn, "some checks failed", colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Database", colorize)...)
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					lines = append(lines, renderStatusLine("Queue database", statusError, err.Error(), colorize))
				} else {
					kind := statusOK
					message := db.DBPath
					if !db.Healthy() {
						kind = statusError
						if db.Error != "" {
							message = db.Error
						} else if len(db.MissingTables) > 0 {
							message = "missing tables: " + strings.Join(db.MissingTables, ", ")
						}
					}
					lines = append(lines, renderStatusLine("Queue database", kind, message, colorize))
				}

				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				lines = append(lines, renderStatusLine("Queue entries", statusInfo,
					fmt.Sprintf("%d total (%d pending, %d processing, %d failed)",
						health.Total, health.Pending, health.Processing, health.Failed), colorize))

				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			})
		},
	}
}
