// Package cliconfig provides configuration types and loading for the mocify CLI.
package cliconfig

import "time"

// Config is the complete configuration of `mocify serve`.
// Values come from, in increasing precedence:
//  1. Default values
//  2. A YAML config file (--config, or mocify.yaml / .mocify.yaml in the
//     current directory)
//  3. MOCIFY_* environment variables
//  4. Command-line flags
type Config struct {
	// Control API
	AdminHost string `yaml:"adminHost" json:"adminHost" split_words:"true"`
	AdminPort int    `yaml:"adminPort" json:"adminPort" split_words:"true"`

	// AdminURL is where client commands reach a running server. Empty means
	// derived from AdminHost and AdminPort.
	AdminURL string `yaml:"adminUrl,omitempty" json:"adminUrl,omitempty" split_words:"true"`

	// Mock listeners
	BindHost          string        `yaml:"bindHost" json:"bindHost" split_words:"true"`
	PublicHost        string        `yaml:"publicHost" json:"publicHost" split_words:"true"`
	GracePeriod       time.Duration `yaml:"gracePeriod" json:"gracePeriod" split_words:"true"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" json:"readHeaderTimeout" split_words:"true"`
	WriteTimeout      time.Duration `yaml:"writeTimeout" json:"writeTimeout" split_words:"true"`
	MaxLogEntries     int           `yaml:"maxLogEntries" json:"maxLogEntries" split_words:"true"`
	StartAll          bool          `yaml:"startAll" json:"startAll" split_words:"true"`

	Storage StorageConfig `yaml:"storage" json:"storage" split_words:"true"`
	Seed    SeedConfig    `yaml:"seed" json:"seed" split_words:"true"`
	Log     LogConfig     `yaml:"log" json:"log" split_words:"true"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" split_words:"true"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `yaml:"-" json:"configFile,omitempty" ignored:"true"`
}

// StorageConfig selects the Route Store backend.
type StorageConfig struct {
	Driver      string        `yaml:"driver" json:"driver" split_words:"true"`
	Path        string        `yaml:"path" json:"path" split_words:"true"`
	BusyTimeout time.Duration `yaml:"busyTimeout" json:"busyTimeout" split_words:"true"`
}

// SeedConfig lists the seed files applied on startup.
type SeedConfig struct {
	Files    []string      `yaml:"files" json:"files" split_words:"true"`
	Watch    bool          `yaml:"watch" json:"watch" split_words:"true"`
	Debounce time.Duration `yaml:"debounce" json:"debounce" split_words:"true"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" split_words:"true"`
	Format string `yaml:"format" json:"format" split_words:"true"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Runtime adds Go runtime and process collectors to /metrics.
	Runtime bool `yaml:"runtime" json:"runtime" split_words:"true"`
}
