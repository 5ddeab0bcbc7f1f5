package config

const (
	defaultBrokerURL        = "amqp://127.0.0.1:5672"
	defaultDataDir          = "~/.local/share/recload/data"
	defaultBlobDir          = "~/.local/share/recload/blobs"
	defaultLogDir           = "~/.local/share/recload/logs"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultHealthQueue      = "HEALTH"
	defaultHealthIntervalMS = 200
	defaultPollInterval     = 3
	defaultPumpQueue        = "IMPORT"
	defaultLockPath         = "~/.local/share/recload/pump.lock"
)

// DefaultChunkSize caps one chunked consume. It is a backpressure control,
// not a business rule.
const DefaultChunkSize = 50

// DefaultStaleSeconds is the staleness window for the work-item timeout guard.
const DefaultStaleSeconds = 60

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Broker: Broker{
			URL:            defaultBrokerURL,
			ChunkSize:      DefaultChunkSize,
			HealthQueue:    defaultHealthQueue,
			HealthInterval: defaultHealthIntervalMS,
		},
		Store: Store{
			DataDir:      defaultDataDir,
			BlobDir:      defaultBlobDir,
			StaleSeconds: DefaultStaleSeconds,
		},
		Pump: Pump{
			PollInterval: defaultPollInterval,
			Queue:        defaultPumpQueue,
			LockPath:     defaultLockPath,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Dir:    defaultLogDir,
		},
	}
}
