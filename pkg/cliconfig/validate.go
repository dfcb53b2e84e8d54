package cliconfig

import (
	"errors"
	"fmt"

	"github.com/mocify/mocify/pkg/logging"
	"github.com/mocify/mocify/pkg/store"
)

// Validate checks the configuration for values the server cannot use.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("adminPort %d is out of range (1-65535)", c.AdminPort))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("gracePeriod %s must not be negative", c.GracePeriod))
	}
	if c.ReadHeaderTimeout < 0 {
		errs = append(errs, fmt.Errorf("readHeaderTimeout %s must not be negative", c.ReadHeaderTimeout))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("writeTimeout %s must not be negative", c.WriteTimeout))
	}
	if c.MaxLogEntries < 1 {
		errs = append(errs, fmt.Errorf("maxLogEntries %d must be at least 1", c.MaxLogEntries))
	}

	backend, err := store.ParseBackend(c.Storage.Driver)
	if err != nil {
		errs = append(errs, fmt.Errorf("storage.driver: %w", err))
	} else if backend == store.BackendSQLite && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
	}
	if c.Storage.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("storage.busyTimeout %s must not be negative", c.Storage.BusyTimeout))
	}

	if c.Seed.Watch && len(c.Seed.Files) == 0 {
		errs = append(errs, errors.New("seed.watch needs at least one seed file"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	return errors.Join(errs...)
}
