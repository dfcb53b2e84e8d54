package cliconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "MOCIFY"

// LocalConfigFileNames are the names searched for in the working directory
// when no --config is given, in order.
var LocalConfigFileNames = []string{"mocify.yaml", "mocify.yml", ".mocify.yaml", ".mocify.yml"}

// FindLocalConfig returns the first local config file in dir, or "" if
// there is none.
func FindLocalConfig(dir string) string {
	for _, name := range LocalConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadConfigFile reads a YAML file on top of cfg. Keys absent from the file
// keep their current value.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cerr := &ConfigError{Path: path, Message: err.Error()}
		var terr *yaml.TypeError
		if errors.As(err, &terr) && len(terr.Errors) > 0 {
			cerr.Message = terr.Errors[0]
		}
		return cerr
	}
	cfg.ConfigFile = path
	return nil
}

// LoadEnv overlays MOCIFY_* environment variables on cfg.
func LoadEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}
	return nil
}

// Load builds the configuration from defaults, a config file and the
// environment. An explicit path must exist; without one the working
// directory is searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = FindLocalConfig(cwd)
		}
	}
	if path != "" {
		if err := LoadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := LoadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigError represents a configuration file error with location info.
type ConfigError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return e.Path + " (line " + strconv.Itoa(e.Line) + ", column " + strconv.Itoa(e.Column) + "): " + e.Message
	}
	return e.Path + ": " + e.Message
}
