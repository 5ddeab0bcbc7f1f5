package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recload/internal/logstore"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and manage archived processing logs",
	}

	logCmd.AddCommand(newLogListCommand(ctx))
	logCmd.AddCommand(newLogShowCommand(ctx))
	logCmd.AddCommand(newLogProtectCommand(ctx))
	logCmd.AddCommand(newLogRemoveCommand(ctx))
	logCmd.AddCommand(newLogExpireCommand(ctx))

	return logCmd
}

func newLogListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List correlation ids with archived log items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLogStore(func(store *logstore.Store) error {
				entries, err := store.Catalog(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No archived log items")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					types := ""
					for i, itemType := range entry.ItemTypes {
						if i > 0 {
							types += ", "
						}
						types += string(itemType)
					}
					rows = append(rows, []string{
						entry.CorrelationID,
						entry.Cataloger,
						types,
						fmt.Sprint(entry.Count),
						formatTime(entry.FirstSeen),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Correlation ID", "Cataloger", "Item types", "Items", "First seen"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newLogShowCommand(ctx *commandContext) *cobra.Command {
	var itemType string
	var sequence int

	cmd := &cobra.Command{
		Use:   "show <correlation-id>",
		Short: "Show archived log items of one correlation id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := logstore.QueryParams{CorrelationID: args[0]}
			if itemType != "" {
				parsed, ok := logstore.ParseItemType(itemType)
				if !ok {
					return fmt.Errorf("unknown item type %q", itemType)
				}
				params.ItemType = parsed
			}
			if cmd.Flags().Changed("sequence") {
				params.BlobSequence = &sequence
			}

			return ctx.withLogStore(func(store *logstore.Store) error {
				items, err := store.Query(cmd.Context(), params)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No matching log items")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(out, "--- %s #%d (%s, protected=%s, %s)\n",
						item.ItemType, item.BlobSequence, item.CorrelationID,
						yesNo(item.Protected), formatTime(item.CreationTime))
					if len(item.Payload) > 0 {
						fmt.Fprintln(out, string(item.Payload))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&itemType, "type", "", "Filter by item type")
	cmd.Flags().IntVar(&sequence, "sequence", 0, "Filter by blob sequence")
	return cmd
}

func newLogProtectCommand(ctx *commandContext) *cobra.Command {
	var sequence int

	cmd := &cobra.Command{
		Use:   "protect <correlation-id>",
		Short: "Toggle expiry protection on archived log items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seqPtr *int
			if cmd.Flags().Changed("sequence") {
				seqPtr = &sequence
			}
			return ctx.withLogStore(func(store *logstore.Store) error {
				flipped, err := store.Protect(cmd.Context(), args[0], seqPtr)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Protection toggled on %d log item(s)\n", flipped)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&sequence, "sequence", 0, "Limit to one blob sequence")
	return cmd
}

func newLogRemoveCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <correlation-id>",
		Short: "Remove archived log items of one correlation id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLogStore(func(store *logstore.Store) error {
				removed, err := store.Remove(cmd.Context(), logstore.QueryParams{CorrelationID: args[0]}, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d log item(s) removed\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove protected items too")
	return cmd
}

func newLogExpireCommand(ctx *commandContext) *cobra.Command {
	var start, end int
	var force bool

	cmd := &cobra.Command{
		Use:   "expire <correlation-id>",
		Short: "Expire archived log items by sequence range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLogStore(func(store *logstore.Store) error {
				removed, err := store.Expire(cmd.Context(), args[0], start, end, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d log item(s) expired\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "First blob sequence (inclusive)")
	cmd.Flags().IntVar(&end, "end", 0, "Last blob sequence (inclusive)")
	cmd.Flags().BoolVar(&force, "force", false, "Expire protected items too")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
