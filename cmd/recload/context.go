package main

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"recload/internal/broker"
	"recload/internal/config"
	"recload/internal/itemstore"
	"recload/internal/logging"
	"recload/internal/logstore"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withOperator dials the broker for one command invocation and tears the
// connection down afterwards.
func (c *commandContext) withOperator(fn func(*broker.Operator) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	conn, err := broker.Dial(cfg.Broker.URL)
	if err != nil {
		return err
	}

	operator, err := broker.NewOperator(conn, logging.NewNop(),
		broker.WithChunkSize(cfg.Broker.ChunkSize))
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = operator.CloseConnection() }()

	return fn(operator)
}

func (c *commandContext) withStore(fn func(*itemstore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := itemstore.Open(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func (c *commandContext) withLogStore(fn func(*logstore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := logstore.Open(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
