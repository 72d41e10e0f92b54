package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// MaxStreamRate bounds the configurable chunk size.
	MaxStreamRate = 16 * 1024 * 1024

	defaultServerAddress  = "0.0.0.0"
	defaultServerPort     = 9001
	defaultStreamRate     = 1400
	defaultStorageDir     = "./storage"
	defaultMaxConnections = 8
	defaultFrameTimeout   = 30 * time.Second
	defaultFFmpegPath     = "ffmpeg"
)

// Config wraps the options of a server. The keys are shared with the client, which only
// reads server_address, server_port and stream_rate.
type Config struct {
	ServerAddress string `yaml:"server_address"`
	ServerPort    int    `yaml:"server_port"`

	// StreamRate is the plaintext size of each payload chunk. Both peers must agree on it.
	StreamRate int `yaml:"stream_rate"`

	StorageDir string `yaml:"storage_dir"`

	// MaxStorage bounds the bytes held by in-flight uploads. Zero means unlimited.
	MaxStorage int64 `yaml:"max_storage"`

	MaxConnections int           `yaml:"max_connections"`
	FrameTimeout   time.Duration `yaml:"frame_timeout"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`

	// MetricsAddress enables the /metrics endpoint when set, e.g. ":8081".
	MetricsAddress string `yaml:"metrics_address,omitempty"`
}

// DefaultConfig returns the configuration used for keys missing from the config file.
func DefaultConfig() Config {
	return Config{
		ServerAddress:  defaultServerAddress,
		ServerPort:     defaultServerPort,
		StreamRate:     defaultStreamRate,
		StorageDir:     defaultStorageDir,
		MaxConnections: defaultMaxConnections,
		FrameTimeout:   defaultFrameTimeout,
		FFmpegPath:     defaultFFmpegPath,
	}
}

// Address is the host:port the server listens on and the client dials.
func (c *Config) Address() string {
	return net.JoinHostPort(c.ServerAddress, strconv.Itoa(c.ServerPort))
}

// Dump generates a YAML string of the Config object
func (c *Config) Dump() (string, error) {
	d, err := yaml.Marshal(&c)

	if err != nil {
		return "", errors.Wrap(err, "failed to generate YAML dump of config")
	}

	return string(d), nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ServerAddress == "" {
		result = multierror.Append(result, fmt.Errorf("server_address is required"))
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("server_port must be between 0 and 65535, got %d", c.ServerPort))
	}

	if c.StreamRate <= 0 || c.StreamRate > MaxStreamRate {
		result = multierror.Append(result, fmt.Errorf("stream_rate must be between 1 and %d, got %d", MaxStreamRate, c.StreamRate))
	}

	if c.StorageDir == "" {
		result = multierror.Append(result, fmt.Errorf("storage_dir is required"))
	}

	if c.MaxStorage < 0 {
		result = multierror.Append(result, fmt.Errorf("max_storage must not be negative, got %d", c.MaxStorage))
	}

	if c.MaxConnections <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections))
	}

	if c.FrameTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("frame_timeout must not be negative, got %s", c.FrameTimeout))
	}

	return result.ErrorOrNil()
}

// ParseConfig reads a YAML (or JSON) config on top of the defaults and validates it.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return config, errors.Wrap(err, "failed to parse config")
	}

	if err = config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}
