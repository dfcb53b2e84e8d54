package cliconfig

import (
	"net"
	"strconv"
	"time"
)

// DefaultAdminPort is the default control API port.
const DefaultAdminPort = 4290

// DefaultAdminHost is the default control API bind address.
const DefaultAdminHost = "127.0.0.1"

// DefaultBindHost is the default address mock listeners bind to.
const DefaultBindHost = "127.0.0.1"

// DefaultPublicHost is the host used in reported base URLs.
const DefaultPublicHost = "localhost"

// DefaultGracePeriod bounds how long a stopping listener drains requests.
const DefaultGracePeriod = 5 * time.Second

// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// DefaultMaxLogEntries is the default request journal size per listener.
const DefaultMaxLogEntries = 1000

// DefaultStorageDriver is the default Route Store backend.
const DefaultStorageDriver = "sqlite"

// DefaultStoragePath is the default SQLite database file.
const DefaultStoragePath = "./mocify.db"

// DefaultBusyTimeout is how long SQLite waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// DefaultSeedDebounce is the quiet period before seed files are reloaded.
const DefaultSeedDebounce = 100 * time.Millisecond

// DefaultAdminURL returns the admin API URL for the given host and port.
func DefaultAdminURL(host string, port int) string {
	if port == 0 {
		port = DefaultAdminPort
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// NewDefault creates a Config with default values.
// WriteTimeout stays zero: a route delay may legitimately exceed any fixed
// write deadline.
func NewDefault() *Config {
	return &Config{
		AdminHost:         DefaultAdminHost,
		AdminPort:         DefaultAdminPort,
		BindHost:          DefaultBindHost,
		PublicHost:        DefaultPublicHost,
		GracePeriod:       DefaultGracePeriod,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		MaxLogEntries:     DefaultMaxLogEntries,
		Storage: StorageConfig{
			Driver:      DefaultStorageDriver,
			Path:        DefaultStoragePath,
			BusyTimeout: DefaultBusyTimeout,
		},
		Seed: SeedConfig{
			Debounce: DefaultSeedDebounce,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ResolvedAdminURL returns AdminURL, or the URL derived from the admin
// host and port when it is unset.
func (c *Config) ResolvedAdminURL() string {
	if c.AdminURL != "" {
		return c.AdminURL
	}
	return DefaultAdminURL(c.AdminHost, c.AdminPort)
}
