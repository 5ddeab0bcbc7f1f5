package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Broker contains connection settings for the AMQP broker.
type Broker struct {
	// URL is the broker connection string. The RECLOAD_AMQP_URL environment
	// variable overrides this value so credentials can stay out of the file.
	URL string `toml:"url"`
	// ChunkSize caps how many messages one chunked consume pulls.
	ChunkSize int `toml:"chunk_size"`
	// HealthQueue is the sentinel queue asserted by the health-check loop.
	HealthQueue string `toml:"health_queue"`
	// HealthInterval is the health-check period in milliseconds.
	HealthInterval int `toml:"health_interval_ms"`
}

// Store contains persistence settings for the work-item and log stores.
type Store struct {
	// DataDir holds the SQLite databases.
	DataDir string `toml:"data_dir"`
	// BlobDir holds streamed work-item content, one file per correlation id.
	BlobDir string `toml:"blob_dir"`
	// StaleSeconds is the staleness window after which an untouched
	// in-flight work item is aborted.
	StaleSeconds int `toml:"stale_seconds"`
}

// Pump contains consumer loop settings.
type Pump struct {
	// PollInterval is the queue poll period in seconds.
	PollInterval int `toml:"poll_interval"`
	// Queue is the queue the pump drains.
	Queue string `toml:"queue"`
	// LockPath guards against two pumps sharing one store.
	LockPath string `toml:"lock_path"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Fixup toggles the record normalization passes applied before commit.
type Fixup struct {
	// F035Filters and SIDFilters pair positionally: a 035 value matching
	// F035Filters[i] yields a SID field carrying SIDFilters[i].
	F035Filters []string `toml:"f035_filters"`
	SIDFilters  []string `toml:"sid_filters"`

	ReplacePrefixes    []PrefixRule `toml:"replace_prefixes"`
	HandleTempURNs     bool         `toml:"handle_temp_urns"`
	StripF884s         bool         `toml:"strip_f884s"`
	StripF984s         bool         `toml:"strip_f984s"`
	StripTempSubfields bool         `toml:"strip_temp_subfields"`
}

// PrefixRule rewrites one parenthesized prefix inside named subfield codes.
type PrefixRule struct {
	OldPrefix string   `toml:"old_prefix"`
	NewPrefix string   `toml:"new_prefix"`
	Codes     []string `toml:"codes"`
}

// Config encapsulates all configuration values for recload.
type Config struct {
	Broker  Broker  `toml:"broker"`
	Store   Store   `toml:"store"`
	Pump    Pump    `toml:"pump"`
	Logging Logging `toml:"logging"`
	Fixup   Fixup   `toml:"fixup"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recload/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if url := strings.TrimSpace(os.Getenv("RECLOAD_AMQP_URL")); url != "" {
		cfg.Broker.URL = url
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recload.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the stores need before opening.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Store.DataDir, c.Store.BlobDir, c.Logging.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Store.DataDir, err = expandPath(c.Store.DataDir); err != nil {
		return fmt.Errorf("store.data_dir: %w", err)
	}
	if c.Store.BlobDir, err = expandPath(c.Store.BlobDir); err != nil {
		return fmt.Errorf("store.blob_dir: %w", err)
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	if c.Pump.LockPath, err = expandPath(c.Pump.LockPath); err != nil {
		return fmt.Errorf("pump.lock_path: %w", err)
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Broker.ChunkSize == 0 {
		c.Broker.ChunkSize = DefaultChunkSize
	}
	if c.Broker.HealthInterval == 0 {
		c.Broker.HealthInterval = defaultHealthIntervalMS
	}
	if c.Broker.HealthQueue == "" {
		c.Broker.HealthQueue = defaultHealthQueue
	}
	if c.Store.StaleSeconds == 0 {
		c.Store.StaleSeconds = DefaultStaleSeconds
	}
	if c.Pump.PollInterval == 0 {
		c.Pump.PollInterval = defaultPollInterval
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		if strings.HasPrefix(trimmed, "~/") {
			return filepath.Join(home, trimmed[2:]), nil
		}
	}
	return filepath.Abs(trimmed)
}

// ExpandPath resolves ~ and relative segments in a user-supplied path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
