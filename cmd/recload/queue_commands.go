package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"recload/internal/broker"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and operate broker queues",
	}

	queueCmd.AddCommand(newQueueCheckCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueSendCommand(ctx))

	return queueCmd
}

func parseStyle(value string) (broker.Style, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "count":
		return broker.StyleCountOnly, nil
	case "one":
		return broker.StyleOne, nil
	case "chunk":
		return broker.StyleChunk, nil
	default:
		return 0, fmt.Errorf("unknown style %q (use count, one or chunk)", value)
	}
}

func newQueueCheckCommand(ctx *commandContext) *cobra.Command {
	var styleFlag string
	var toRecords bool
	var purgeFirst bool

	cmd := &cobra.Command{
		Use:   "check <queue>",
		Short: "Assert a queue and read from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := parseStyle(styleFlag)
			if err != nil {
				return err
			}
			return ctx.withOperator(func(operator *broker.Operator) error {
				result, err := operator.CheckQueue(broker.CheckRequest{
					Queue:     args[0],
					Style:     style,
					ToRecords: toRecords,
					Purge:     purgeFirst,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if style == broker.StyleCountOnly {
					fmt.Fprintf(out, "%d message(s) in %s\n", result.Count, args[0])
					return nil
				}
				if result.Empty {
					fmt.Fprintf(out, "Queue %s is empty\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(result.Messages))
				for _, msg := range result.Messages {
					rows = append(rows, []string{
						msg.CorrelationId,
						fmt.Sprint(msg.DeliveryTag),
						fmt.Sprint(len(msg.Body)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Correlation ID", "Delivery tag", "Bytes"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight}))
				if toRecords {
					fmt.Fprintf(out, "%d record(s) decoded\n", len(result.Records))
				}
				// The read consumed without acking; put the messages back.
				return operator.NackMessages(result.Messages)
			})
		},
	}

	cmd.Flags().StringVar(&styleFlag, "style", "count", "Read style: count, one or chunk")
	cmd.Flags().BoolVar(&toRecords, "records", false, "Decode message bodies into records")
	cmd.Flags().BoolVar(&purgeFirst, "purge-first", false, "Purge the queue before reading")
	return cmd
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <queue>",
		Short: "Drop all messages from a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOperator(func(operator *broker.Operator) error {
				result, err := operator.CheckQueue(broker.CheckRequest{
					Queue: args[0],
					Style: broker.StyleCountOnly,
					Purge: true,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %s purged, %d message(s) remain\n", args[0], result.Count)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <queue>",
		Short: "Delete a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOperator(func(operator *broker.Operator) error {
				if err := operator.RemoveQueue(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %s removed\n", args[0])
				return nil
			})
		},
	}
}

func newQueueSendCommand(ctx *commandContext) *cobra.Command {
	var correlationID string
	var filePath string

	cmd := &cobra.Command{
		Use:   "send <queue>",
		Short: "Publish a message to a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(correlationID) == "" {
				correlationID = uuid.NewString()
			}

			var (
				data []byte
				err  error
			)
			if filePath == "" || filePath == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(filePath)
			}
			if err != nil {
				return fmt.Errorf("read message body: %w", err)
			}

			return ctx.withOperator(func(operator *broker.Operator) error {
				err := operator.SendToQueue(cmd.Context(), broker.SendRequest{
					Queue:         args[0],
					CorrelationID: correlationID,
					Headers:       amqp.Table{},
					Data:          data,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %d byte(s) to %s as %s\n", len(data), args[0], correlationID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation id to stamp on the message (default: generated)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Message body file (default: stdin)")
	return cmd
}
