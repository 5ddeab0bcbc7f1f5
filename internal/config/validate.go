package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePump(); err != nil {
		return err
	}
	return c.validateFixup()
}

func (c *Config) validateBroker() error {
	url := strings.TrimSpace(c.Broker.URL)
	if url == "" {
		return errors.New("broker.url must be set (or RECLOAD_AMQP_URL)")
	}
	if !strings.HasPrefix(url, "amqp://") && !strings.HasPrefix(url, "amqps://") {
		return fmt.Errorf("broker.url %q must use the amqp:// or amqps:// scheme", url)
	}
	if c.Broker.ChunkSize < 1 {
		return errors.New("broker.chunk_size must be positive")
	}
	if c.Broker.HealthInterval < 1 {
		return errors.New("broker.health_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	if strings.TrimSpace(c.Store.DataDir) == "" {
		return errors.New("store.data_dir must be set")
	}
	if strings.TrimSpace(c.Store.BlobDir) == "" {
		return errors.New("store.blob_dir must be set")
	}
	if c.Store.StaleSeconds < 1 {
		return errors.New("store.stale_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePump() error {
	if c.Pump.PollInterval < 1 {
		return errors.New("pump.poll_interval must be positive")
	}
	return nil
}

func (c *Config) validateFixup() error {
	if len(c.Fixup.F035Filters) != len(c.Fixup.SIDFilters) {
		return fmt.Errorf(
			"fixup.f035_filters and fixup.sid_filters must pair up (%d vs %d entries)",
			len(c.Fixup.F035Filters), len(c.Fixup.SIDFilters),
		)
	}
	for i, rule := range c.Fixup.ReplacePrefixes {
		if strings.TrimSpace(rule.OldPrefix) == "" || strings.TrimSpace(rule.NewPrefix) == "" {
			return fmt.Errorf("fixup.replace_prefixes[%d] needs both old_prefix and new_prefix", i)
		}
		if len(rule.Codes) == 0 {
			return fmt.Errorf("fixup.replace_prefixes[%d] needs at least one subfield code", i)
		}
	}
	return nil
}
