// Package config loads grblstream settings.
//
// Settings are resolved from, lowest precedence first: built-in defaults, the
// JSON settings file, a .env file and GRBLSTREAM_* environment variables, and
// finally command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable override, e.g.
// GRBLSTREAM_SERIAL_DEVICE.
const EnvPrefix = "GRBLSTREAM_"

// DefaultFilename is the settings file used when none is given.
func DefaultFilename() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".grbl-stream.json")
}

// Config holds every setting. The JSON key of a setting is also its -set
// name, and its env key, prefixed with EnvPrefix, its environment variable.
type Config struct {
	// KeepOpen waits for the operator after the program is done.
	KeepOpen bool `json:"keep_open" env:"KEEP_OPEN"`
	// DelayBeforeExit is in seconds.
	DelayBeforeExit float64 `json:"delay_before_exit" env:"DELAY_BEFORE_EXIT"`

	SerialLogging  bool   `json:"serial_logging" env:"SERIAL_LOGGING"`
	SerialLogFile  string `json:"serial_log_file" env:"SERIAL_LOG_FILE"`
	SerialDevice   string `json:"serial_device" env:"SERIAL_DEVICE"`
	SerialBaudrate int    `json:"serial_baudrate" env:"SERIAL_BAUDRATE"`
	// SerialDriver is "bugst", "tarm" or "file".
	SerialDriver string `json:"serial_driver" env:"SERIAL_DRIVER"`

	StatusPolling bool `json:"status_polling" env:"STATUS_POLLING"`
	// StatusPollInterval is in seconds.
	StatusPollInterval float64 `json:"status_poll_interval" env:"STATUS_POLL_INTERVAL"`

	InteractiveJogging bool `json:"interactive_jogging" env:"INTERACTIVE_JOGGING"`
	// JoggingUnit is "mm" or "inch".
	JoggingUnit      string    `json:"jogging_unit" env:"JOGGING_UNIT"`
	JoggingValues    []float64 `json:"jogging_values" env:"JOGGING_VALUES"`
	JoggingInitValue float64   `json:"jogging_init_value" env:"JOGGING_INIT_VALUE"`
	JoggingFeedRate  float64   `json:"jogging_feed_rate" env:"JOGGING_FEED_RATE"`
	UseGrblJogging   bool      `json:"use_grbl_jogging" env:"USE_GRBL_JOGGING"`

	// StreamPendingCount is how many commands are read ahead of the
	// controller.
	StreamPendingCount int `json:"stream_pending_count" env:"STREAM_PENDING_COUNT"`
	GrblBufferSize     int `json:"grbl_buffer_size" env:"GRBL_BUFFER_SIZE"`
	// RejectPolicy is "hold", "abort" or "continue".
	RejectPolicy string `json:"reject_policy" env:"REJECT_POLICY"`
	// StartupTimeout is in seconds.
	StartupTimeout float64 `json:"startup_timeout" env:"STARTUP_TIMEOUT"`

	// MonitorAddr enables the HTTP monitor when set, e.g. ":9091".
	MonitorAddr string `json:"monitor_addr" env:"MONITOR_ADDR"`

	LogLevel  string `json:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" env:"LOG_FORMAT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		KeepOpen:           true,
		SerialLogFile:      "grbl-stream.log",
		SerialBaudrate:     115200,
		SerialDriver:       "bugst",
		StatusPolling:      true,
		StatusPollInterval: 0.25,
		InteractiveJogging: true,
		JoggingUnit:        "mm",
		JoggingValues:      []float64{0.001, 0.01, 0.1, 1, 10, 25, 50, 100, 250, 500},
		JoggingInitValue:   0.001,
		JoggingFeedRate:    500,
		UseGrblJogging:     true,
		StreamPendingCount: 5,
		GrblBufferSize:     128,
		RejectPolicy:       "hold",
		StartupTimeout:     10,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Load reads the settings file at path, creating it with defaults if it does
// not exist, then applies the .env file and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFilename()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		err = cfg.Save(path)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	default:
		err = json.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	err = cfg.ApplyEnv(os.Environ())
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the settings as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}
	err = os.WriteFile(path, append(data, '\n'), 0o644)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// ApplyEnv applies GRBLSTREAM_* entries from a KEY=value list.
func (c *Config) ApplyEnv(environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, EnvPrefix) {
			vars[key] = val
		}
	}
	return c.parseEnv(vars)
}

func (c *Config) parseEnv(vars map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{
		Prefix:      EnvPrefix,
		Environment: vars,
	})
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Set assigns a setting by its JSON key; dashes are accepted in place of
// underscores, so flag names can be used directly. Lists are comma separated.
func (c *Config) Set(name, value string) error {
	name = strings.ReplaceAll(name, "-", "_")
	if !knownSetting(name) {
		return errors.New("unknown setting: " + name)
	}
	return c.parseEnv(map[string]string{EnvPrefix + strings.ToUpper(name): value})
}

func knownSetting(name string) bool {
	data, err := json.Marshal(Default())
	if err != nil {
		return false
	}
	var keys map[string]json.RawMessage
	err = json.Unmarshal(data, &keys)
	if err != nil {
		return false
	}
	_, ok := keys[name]
	return ok
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	switch {
	case c.SerialBaudrate <= 0:
		return errors.New("serial_baudrate must be positive")
	case c.GrblBufferSize <= 0:
		return errors.New("grbl_buffer_size must be positive")
	case c.StreamPendingCount <= 0:
		return errors.New("stream_pending_count must be positive")
	case c.StatusPolling && c.StatusPollInterval <= 0:
		return errors.New("status_poll_interval must be positive")
	case c.StartupTimeout <= 0:
		return errors.New("startup_timeout must be positive")
	case c.JoggingUnit != "mm" && c.JoggingUnit != "inch":
		return errors.New("jogging_unit must be mm or inch")
	case len(c.JoggingValues) == 0:
		return errors.New("jogging_values is empty")
	case !slices.Contains(c.JoggingValues, c.JoggingInitValue):
		return fmt.Errorf("jogging_init_value %g is not one of jogging_values", c.JoggingInitValue)
	case c.JoggingFeedRate <= 0:
		return errors.New("jogging_feed_rate must be positive")
	}
	switch c.RejectPolicy {
	case "hold", "abort", "continue":
	default:
		return errors.New("reject_policy must be hold, abort or continue")
	}
	switch c.SerialDriver {
	case "bugst", "tarm", "file":
	default:
		return errors.New("serial_driver must be bugst, tarm or file")
	}
	return nil
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func (c Config) PollInterval() time.Duration    { return seconds(c.StatusPollInterval) }
func (c Config) StartupDuration() time.Duration { return seconds(c.StartupTimeout) }
func (c Config) ExitDelay() time.Duration       { return seconds(c.DelayBeforeExit) }
