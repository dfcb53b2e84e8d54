package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mocify/mocify/internal/storage"
	"github.com/mocify/mocify/pkg/admin"
	"github.com/mocify/mocify/pkg/cli/internal/ports"
	"github.com/mocify/mocify/pkg/cliconfig"
	"github.com/mocify/mocify/pkg/engine"
	"github.com/mocify/mocify/pkg/logging"
	"github.com/mocify/mocify/pkg/metrics"
	"github.com/mocify/mocify/pkg/seed"
	"github.com/mocify/mocify/pkg/store"
	"github.com/mocify/mocify/pkg/store/sqlite"
)

type serveFlags struct {
	configFile  string
	adminPort   int
	adminHost   string
	bindHost    string
	publicHost  string
	storage     string
	dbPath      string
	seedFiles   []string
	watch       bool
	startAll    bool
	gracePeriod time.Duration
	logLevel    string
	logFormat   string
}

func newServeCmd() *cobra.Command {
	return (&serveFlags{}).command()
}

func (f *serveFlags) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and serve mock collections",
		Long: `Run the admin API and serve mock collections.

Collections and routes are read from the route store. Seed files given with
--seed (or seed.files in the config file) are applied to the store on startup
and, with --watch, again whenever they change.

The process runs until SIGINT or SIGTERM, then stops every mock server within
the grace period.`,
		Example: `  # Serve seed files from a directory and start every collection
  mocify serve --seed 'mocks/**/*.yaml' --start-all

  # Keep state in memory only and reload on edits
  mocify serve --storage memory --seed api.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cliconfig.Load(f.configFile)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "Path to a config file (default: ./mocify.yaml if present)")
	fl.IntVar(&f.adminPort, "admin-port", cliconfig.DefaultAdminPort, "Admin API port")
	fl.StringVar(&f.adminHost, "admin-host", cliconfig.DefaultAdminHost, "Admin API bind address")
	fl.StringVar(&f.bindHost, "bind-host", cliconfig.DefaultBindHost, "Address mock servers bind to")
	fl.StringVar(&f.publicHost, "public-host", cliconfig.DefaultPublicHost, "Host used in reported base URLs")
	fl.StringVar(&f.storage, "storage", cliconfig.DefaultStorageDriver, "Route store backend: sqlite or memory")
	fl.StringVar(&f.dbPath, "db", cliconfig.DefaultStoragePath, "SQLite database path")
	fl.StringArrayVarP(&f.seedFiles, "seed", "s", nil, "Seed file or glob to apply on startup (repeatable)")
	fl.BoolVarP(&f.watch, "watch", "w", false, "Re-apply seed files when they change")
	fl.BoolVar(&f.startAll, "start-all", false, "Start a mock server for every stored collection")
	fl.DurationVar(&f.gracePeriod, "grace-period", cliconfig.DefaultGracePeriod, "How long stopping servers wait for in-flight requests")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	return cmd
}

// apply overlays the flags the user actually set onto cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *cliconfig.Config) {
	changed := cmd.Flags().Changed
	if changed("admin-port") {
		cfg.AdminPort = f.adminPort
	}
	if changed("admin-host") {
		cfg.AdminHost = f.adminHost
	}
	if changed("bind-host") {
		cfg.BindHost = f.bindHost
	}
	if changed("public-host") {
		cfg.PublicHost = f.publicHost
	}
	if changed("storage") {
		cfg.Storage.Driver = f.storage
	}
	if changed("db") {
		cfg.Storage.Path = f.dbPath
	}
	if changed("seed") {
		cfg.Seed.Files = f.seedFiles
	}
	if changed("watch") {
		cfg.Seed.Watch = f.watch
	}
	if changed("start-all") {
		cfg.StartAll = f.startAll
	}
	if changed("grace-period") {
		cfg.GracePeriod = f.gracePeriod
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
}

// runServe runs the admin API, the seed watcher and the mock servers until
// ctx is cancelled. cfg must already be validated.
func runServe(ctx context.Context, cfg *cliconfig.Config, logOut io.Writer) error {
	log, err := logging.FromStrings(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return err
	}

	if err := ports.Check(cfg.AdminHost, cfg.AdminPort); err != nil {
		return fmt.Errorf("%w: admin port %d: %v", engine.ErrBind, cfg.AdminPort, err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("closing route store", "error", err)
		}
	}()

	var metricOpts []metrics.Option
	if cfg.Metrics.Runtime {
		metricOpts = append(metricOpts, metrics.WithRuntimeMetrics())
	}
	collector := metrics.NewCollector(metricOpts...)

	eng := engine.New(st,
		engine.WithLogger(log),
		engine.WithMetrics(collector),
		engine.WithGracePeriod(cfg.GracePeriod),
		engine.WithBindHost(cfg.BindHost),
		engine.WithPublicHost(cfg.PublicHost),
		engine.WithTimeouts(cfg.ReadHeaderTimeout, cfg.WriteTimeout),
		engine.WithMaxLogEntries(cfg.MaxLogEntries),
	)

	apiOpts := []admin.Option{
		admin.WithLogger(log),
		admin.WithRouteStore(st),
		admin.WithMetricsHandler(collector.Handler()),
		admin.WithVersion(Version),
	}

	var (
		syncer  *seed.Syncer
		watcher *seed.Watcher
	)
	if len(cfg.Seed.Files) > 0 {
		baseDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		syncer = seed.NewSyncer(cfg.Seed.Files, baseDir, st, eng, log)
		if _, err := syncer.Sync(ctx); err != nil {
			return err
		}
		apiOpts = append(apiOpts, admin.WithReloader(syncer))

		if cfg.Seed.Watch {
			watcher, err = seed.NewWatcher(seed.WatcherConfig{
				Patterns:         cfg.Seed.Files,
				BaseDir:          baseDir,
				DebounceInterval: cfg.Seed.Debounce,
			}, log)
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Stop() }()
		}
	}

	if cfg.StartAll {
		if err := eng.StartAll(ctx); err != nil {
			// Partial start is not fatal: the admin API can still be used to fix it.
			log.Warn("some mock servers failed to start", "error", err)
		}
	}

	api := admin.NewAPI(eng, apiOpts...)
	adminAddr := net.JoinHostPort(cfg.AdminHost, strconv.Itoa(cfg.AdminPort))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(gctx, adminAddr)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Watch(gctx, func() error {
				_, err := syncer.Sync(gctx)
				return err
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdownEngine(eng, cfg.GracePeriod, log)
	})

	log.Info("mocify started",
		"version", Version,
		"admin", adminAddr,
		"storage", cfg.Storage.Driver,
	)
	err = g.Wait()
	log.Info("mocify stopped")
	return err
}

func shutdownEngine(eng *engine.Engine, grace time.Duration, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace+time.Second)
	defer cancel()
	if err := eng.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stopping mock servers: %w", err)
	} else if err != nil {
		log.Warn("mock servers did not stop within the grace period", "error", err)
	}
	return nil
}

func openStore(cfg *cliconfig.Config) (store.Store, error) {
	backend, err := store.ParseBackend(cfg.Storage.Driver)
	if err != nil {
		return nil, err
	}
	switch backend {
	case store.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		path := cfg.Storage.Path
		if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqlite.OpenWithConfig(sqlite.Config{
			Path:        path,
			BusyTimeout: cfg.Storage.BusyTimeout,
		})
	}
}
