package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gantry/internal/config"
	"gantry/internal/queue"
	"gantry/internal/refdata"
	"gantry/internal/tracker"
)

func newRefdataCommand(ctx *commandContext) *cobra.Command {
	refdataCmd := &cobra.Command{
		Use:   "refdata",
		Short: "Inspect and refresh the tracker reference catalog",
	}

	refdataCmd.AddCommand(newRefdataSyncCommand(ctx))
	refdataCmd.AddCommand(newRefdataListCommand(ctx))
	refdataCmd.AddCommand(newRefdataPurgeCommand(ctx))

	return refdataCmd
}

func newRefdataSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the tag and category catalogs from the primary tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				if len(cfg.Trackers) == 0 {
					return errors.New("no trackers configured")
				}
				fetcher := tracker.NewClient(cfg.Trackers[0])
				cache := refdata.New(store, fetcher, cfg, nil)
				if err := cache.Sync(cmd.Context()); err != nil {
					return fmt.Errorf("sync reference catalog: %w", err)
				}
				tags, categories := cache.Counts()
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d tag(s) and %d categorie(s) from %s\n",
					tags, categories, cfg.Trackers[0].Name)
				return nil
			})
		},
	}
}

func newRefdataListCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached reference entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseReferenceKind(kindFlag)
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				entries, err := store.ListReferenceEntries(cmd.Context(), kind)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No cached %s entries; run `gantry refdata sync`\n", kind)
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ExternalID, 10),
						entry.Label,
						entry.Slug,
						entry.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				table := renderTable(
					[]string{"External ID", "Label", "Slug", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "tag", "Reference kind (tag or category)")
	return cmd
}

func newRefdataPurgeCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove all cached entries of one reference kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseReferenceKind(kindFlag)
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.PurgeReferenceEntries(cmd.Context(), kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d %s entrie(s)\n", removed, kind)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "", "Reference kind (tag or category)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func parseReferenceKind(value string) (queue.ReferenceKind, error) {
	switch value {
	case "tag", "tags":
		return queue.KindTag, nil
	case "category", "categories":
		return queue.KindCategory, nil
	default:
		return "", fmt.Errorf("unknown reference kind %q (use tag or category)", value)
	}
}
