package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"recload/internal/broker"
	"recload/internal/fixup"
	"recload/internal/itemstore"
	"recload/internal/logging"
	"recload/internal/pump"
)

func newPumpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pump",
		Short: "Run the import consumer loop",
		Long:  "Drains the import queue, applies the record fixup passes and records outcomes on work items until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			settings, err := fixup.FromConfig(cfg.Fixup)
			if err != nil {
				return err
			}

			store, err := itemstore.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			conn, err := broker.Dial(cfg.Broker.URL)
			if err != nil {
				return err
			}
			operator, err := broker.NewOperator(conn, logger,
				broker.WithChunkSize(cfg.Broker.ChunkSize),
				broker.WithHealthCheck(cfg.Broker.HealthQueue,
					time.Duration(cfg.Broker.HealthInterval)*time.Millisecond))
			if err != nil {
				_ = conn.Close()
				return err
			}
			defer func() { _ = operator.CloseConnection() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return pump.New(operator, store, settings, cfg, logger).Run(runCtx)
		},
	}
}
