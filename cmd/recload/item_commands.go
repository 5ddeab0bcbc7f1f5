package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"recload/internal/itemstore"
)

func newItemCommand(ctx *commandContext) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item",
		Short: "Inspect and manage work items",
	}

	itemCmd.AddCommand(newItemListCommand(ctx))
	itemCmd.AddCommand(newItemShowCommand(ctx))
	itemCmd.AddCommand(newItemContentCommand(ctx))
	itemCmd.AddCommand(newItemRemoveCommand(ctx))
	itemCmd.AddCommand(newItemAbortCommand(ctx))
	itemCmd.AddCommand(newItemRetryCommand(ctx))
	itemCmd.AddCommand(newItemStatsCommand(ctx))

	return itemCmd
}

func parseStates(values []string) ([]itemstore.State, error) {
	states := make([]itemstore.State, 0, len(values))
	for _, value := range values {
		state, ok := itemstore.ParseState(value)
		if !ok {
			return nil, fmt.Errorf("unknown state %q (known: %v)", value, itemstore.AllStates())
		}
		states = append(states, state)
	}
	return states, nil
}

func newItemListCommand(ctx *commandContext) *cobra.Command {
	var stateFlags []string
	var cataloger string
	var operation string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(stateFlags)
			if err != nil {
				return err
			}
			params := itemstore.QueryParams{
				Cataloger: cataloger,
				States:    states,
				Limit:     limit,
			}
			if operation != "" {
				op, ok := itemstore.ParseOperation(operation)
				if !ok {
					return fmt.Errorf("unknown operation %q", operation)
				}
				params.Operation = op
			}

			return ctx.withStore(func(store *itemstore.Store) error {
				items, err := store.Query(cmd.Context(), params, itemstore.Projection{All: true})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No work items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.CorrelationID,
						string(item.Operation),
						string(item.State),
						item.Cataloger,
						fmt.Sprint(len(item.HandledIDs)),
						fmt.Sprint(len(item.RejectedIDs)),
						formatTime(item.ModificationTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Correlation ID", "Operation", "State", "Cataloger", "Handled", "Rejected", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&stateFlags, "state", nil, "Filter by state (repeatable)")
	cmd.Flags().StringVar(&cataloger, "cataloger", "", "Filter by cataloger")
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation (CREATE or UPDATE)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of rows")
	return cmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	var checkStale bool

	cmd := &cobra.Command{
		Use:   "show <correlation-id>",
		Short: "Show one work item in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *itemstore.Store) error {
				item, err := store.QueryByID(cmd.Context(), args[0], checkStale)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Correlation ID:  %s\n", item.CorrelationID)
				fmt.Fprintf(out, "Operation:       %s\n", item.Operation)
				fmt.Fprintf(out, "State:           %s\n", item.State)
				if item.ImportJobState != "" {
					fmt.Fprintf(out, "Import job:      %s\n", item.ImportJobState)
				}
				fmt.Fprintf(out, "Cataloger:       %s\n", item.Cataloger)
				fmt.Fprintf(out, "Created:         %s\n", formatTime(item.CreationTime))
				fmt.Fprintf(out, "Updated:         %s\n", formatTime(item.ModificationTime))
				fmt.Fprintf(out, "Settings:        prio=%s unique=%s noop=%s merge=%s\n",
					yesNo(item.Settings.Prio), yesNo(item.Settings.Unique),
					yesNo(item.Settings.Noop), yesNo(item.Settings.Merge))
				if item.BlobSize > 0 {
					fmt.Fprintf(out, "Content:         %d byte(s) (%s)\n", item.BlobSize, item.ContentType)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:           %s (status %d)\n", item.ErrorMessage, item.ErrorStatus)
				}
				if len(item.HandledIDs) > 0 {
					fmt.Fprintf(out, "Handled ids:     %s\n", strings.Join(item.HandledIDs, ", "))
				}
				if len(item.RejectedIDs) > 0 {
					fmt.Fprintf(out, "Rejected ids:    %s\n", strings.Join(item.RejectedIDs, ", "))
				}
				for _, msg := range item.Messages {
					level := msg.Level
					if level == "" {
						level = "info"
					}
					fmt.Fprintf(out, "  [%s] %-5s %s\n", formatTime(msg.Time), level, msg.Text)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&checkStale, "check-stale", false, "Apply the staleness guard before reading")
	return cmd
}

func newItemContentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "content <correlation-id>",
		Short: "Stream an item's stored content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *itemstore.Store) error {
				reader, _, err := store.ReadContent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer reader.Close()
				_, err = io.Copy(cmd.OutOrStdout(), reader)
				return err
			})
		},
	}
}

func newItemRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <correlation-id>",
		Short: "Remove a work item, its messages and its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *itemstore.Store) error {
				if err := store.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newItemAbortCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort <correlation-id>",
		Short: "Force a work item into ABORT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *itemstore.Store) error {
				item, err := store.SetState(cmd.Context(), args[0], itemstore.StateChange{
					State:        itemstore.StateAbort,
					ErrorMessage: reason,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", item.CorrelationID, item.State)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "Aborted by operator", "Abort reason recorded on the item")
	return cmd
}

func newItemRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <correlation-id>",
		Short: "Send a failed or aborted work item back to queuing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *itemstore.Store) error {
				item, err := store.QueryByID(cmd.Context(), args[0], false)
				if err != nil {
					return err
				}
				if item.State != itemstore.StateError && item.State != itemstore.StateAbort {
					return fmt.Errorf("item %s is %s; only ERROR or ABORT items can be retried",
						item.CorrelationID, item.State)
				}
				item, err = store.SetState(cmd.Context(), args[0], itemstore.StateChange{
					State: itemstore.StatePendingQueuing,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", item.CorrelationID, item.State)
				return nil
			})
		},
	}
}

func newItemStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the work-item store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *itemstore.Store) error {
				stats, err := store.GetStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats.ByState))
				for _, state := range itemstore.AllStates() {
					if count, ok := stats.ByState[state]; ok {
						rows = append(rows, []string{string(state), fmt.Sprint(count)})
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"State", "Items"},
					rows,
					[]columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "Total: %d item(s), %d content byte(s)\n", stats.Total, stats.BlobSize)
				return nil
			})
		},
	}
}
