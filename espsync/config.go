// =============================================================================
// config.go - Layered Configuration
// =============================================================================
//
// Settings are resolved once per invocation, lowest priority first:
//
//	built-in defaults
//	espsync.yaml (., $HOME/.config/espsync, or --config)
//	.env in the working directory
//	ESP_* environment variables (ESP_PORT, ESP_TIMEOUT, ...)
//	command-line flags
//
// The resulting Config is converted into the option structs of the core
// packages, which never read the environment themselves.
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/nagylzs/espsyncer/espexec"
	"github.com/nagylzs/espsyncer/espfs"
	"github.com/nagylzs/espsyncer/espprotocol"
)

const (
	// configName is the config file name without extension.
	configName = "espsync"

	// envPrefix is prepended to every environment variable.
	envPrefix = "ESP"
)

// Config holds every setting of one invocation.
type Config struct {
	Port             string        `mapstructure:"port"`
	BaudRate         int           `mapstructure:"baudrate"`
	Timeout          int           `mapstructure:"timeout"`
	Output           string        `mapstructure:"output"`
	Overwrite        bool          `mapstructure:"overwrite"`
	Contents         bool          `mapstructure:"contents"`
	Quick            bool          `mapstructure:"quick"`
	StopOnTerminator bool          `mapstructure:"stop_on_terminator"`
	ChunkSize        int           `mapstructure:"chunk_size"`
	ReadChunkSize    int           `mapstructure:"read_chunk_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ResetHold        time.Duration `mapstructure:"reset_hold"`
	ResetDTR         bool          `mapstructure:"reset_dtr"`
	FaultMarkers     []string      `mapstructure:"fault_markers"`

	// Verbosity is the number of -v flags. It is not read from files.
	Verbosity int `mapstructure:"-"`
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"port":               "port",
	"baudrate":           "baudrate",
	"timeout":            "timeout",
	"output":             "output",
	"overwrite":          "overwrite",
	"contents":           "contents",
	"quick":              "quick",
	"stop-on-terminator": "stop_on_terminator",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "")
	v.SetDefault("baudrate", espprotocol.DefaultBaudRate)
	v.SetDefault("timeout", int(espprotocol.DefaultTimeout/time.Second))
	v.SetDefault("output", "-")
	v.SetDefault("overwrite", false)
	v.SetDefault("contents", false)
	v.SetDefault("quick", false)
	v.SetDefault("stop_on_terminator", false)
	v.SetDefault("chunk_size", espfs.DefaultChunkSize)
	v.SetDefault("read_chunk_size", espfs.DefaultReadChunkSize)
	v.SetDefault("poll_interval", espexec.DefaultPollInterval)
	v.SetDefault("reset_hold", espprotocol.MinResetHold)
	v.SetDefault("reset_dtr", false)
	v.SetDefault("fault_markers", []string{espprotocol.DefaultFaultMarker})
}

// LoadConfig resolves the configuration. configFile may be empty; flags may
// be nil.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", configName))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads .env from the working directory if there is one.
// Variables already set in the environment win.
func loadEnvFile() error {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return nil
}

// TimeoutDuration converts the timeout in seconds. Zero or negative means
// wait forever and is passed on unchanged.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// discoverPort is replaced in tests.
var discoverPort = espprotocol.DiscoverPort

// ResolvePort returns the configured port, or the only USB serial port
// attached when none is configured.
func (c *Config) ResolvePort() (string, error) {
	if c.Port != "" {
		return c.Port, nil
	}
	port, err := discoverPort()
	if err != nil {
		return "", fmt.Errorf("no serial port given and port discovery failed: %w", err)
	}
	if port == "" {
		return "", errors.New("no serial port given: use --port or set ESP_PORT")
	}
	logrus.WithField("port", port).Info("using discovered port")
	return port, nil
}

// SessionOptions returns the connection settings.
func (c *Config) SessionOptions(log logrus.FieldLogger) espprotocol.Options {
	opts := espprotocol.DefaultOptions()
	opts.BaudRate = c.BaudRate
	opts.Timeout = c.TimeoutDuration()
	opts.ResetHold = c.ResetHold
	opts.HoldDTR = c.ResetDTR
	if len(c.FaultMarkers) > 0 {
		opts.FaultMarkers = c.FaultMarkers
	}
	opts.Logger = log
	return opts
}

// RemoteOptions returns the device filesystem settings.
func (c *Config) RemoteOptions(log logrus.FieldLogger) espfs.Options {
	return espfs.Options{
		ChunkSize:     c.ChunkSize,
		ReadChunkSize: c.ReadChunkSize,
		Logger:        log,
	}
}

// TransferOptions returns the upload and download settings.
func (c *Config) TransferOptions(log logrus.FieldLogger) espfs.TransferOptions {
	return espfs.TransferOptions{
		Contents:  c.Contents,
		Overwrite: c.Overwrite,
		Quick:     c.Quick,
		Logger:    log,
	}
}

// ExecOptions returns the execute and hot reload settings.
func (c *Config) ExecOptions(log logrus.FieldLogger) espexec.Options {
	return espexec.Options{
		StopOnTerminator: c.StopOnTerminator,
		Timeout:          c.TimeoutDuration(),
		PollInterval:     c.PollInterval,
		Logger:           log,
	}
}
