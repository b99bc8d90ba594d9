package processorrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/processor"
	"github.com/nayuki/MamIRC-sub000/internal/reconnect"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	"github.com/nayuki/MamIRC-sub000/internal/runtime"
	httpserver "github.com/nayuki/MamIRC-sub000/internal/server/http"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

type Options struct {
	// ConfigPath is also re-read on SIGHUP.
	ConfigPath string
	// Config is used when ConfigPath is empty; SIGHUP is then ignored.
	Config *config.ProcessorConfig
	// DataDir overrides the configured Pebble directory.
	DataDir   string
	LogLevel  string
	LogFormat string
	// Logger replaces the configured logger, mostly for tests.
	Logger logpkg.Logger
	// Clock drives reconnect timers, mostly for tests.
	Clock reconnect.Clock
	// Reload delivers reload requests in addition to SIGHUP.
	Reload <-chan struct{}
}

func loadConfig(opts Options) (config.ProcessorConfig, error) {
	var cfg config.ProcessorConfig
	switch {
	case opts.ConfigPath != "":
		c, err := config.LoadProcessor(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	case opts.Config != nil:
		cfg = *opts.Config
	default:
		return cfg, errors.New("processorrun: no configuration")
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return config.ProcessorConfig{}, err
	}
	return cfg, nil
}

// Run starts the Processor and blocks until ctx is cancelled, a signal
// arrives, or the Connector stream ends.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := opts.Logger
	if logger == nil {
		var lerr error
		logger, lerr = logpkg.ApplyConfigOrDefault(&cfg.Log, opts.LogLevel, opts.LogFormat)
		if lerr != nil {
			logger.Warn("invalid log configuration, using defaults", logpkg.Err(lerr))
		}
		logpkg.RedirectStdLog(logger)
	}
	logger = logger.With(logpkg.Component("processor"))

	logger.Info("Starting MamIRC processor",
		logpkg.Str("connector", cfg.Connector.Address),
		logpkg.Str("archive", cfg.Archive.Driver),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Int("profiles", len(cfg.Profiles)),
	)
	logProfiles(logger, cfg.Profiles)

	// Attach first: events produced from here on are delivered live, so
	// everything older is in the archive by the time it is read.
	client, err := replication.Dial(sctx, replication.ClientOptions{
		Address:     cfg.Connector.Address,
		Password:    cfg.Connector.Password,
		DialTimeout: cfg.Connector.DialTimeout.D(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("attach to connector: %w", err)
	}
	defer client.Close()

	store, err := archive.Open(sctx, archive.Options{
		Driver:   cfg.Archive.Driver,
		Path:     cfg.Archive.Path,
		DSN:      cfg.Archive.DSN,
		ReadOnly: true,
	})
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	rt, err := runtime.Open(runtime.Options{DataDir: cfg.DataDir, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := processor.New(processor.Options{
		Connector: client,
		History:   store,
		Messages:  rt.Messages(),
		Watermark: rt,
		Profiles:  cfg.Profiles,
		Reconnect: cfg.Reconnect,
		Clock:     opts.Clock,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
			case <-opts.Reload:
			}
			reload(gctx, p, opts.ConfigPath, logger)
		}
	})
	if cfg.Metrics.Address != "" {
		ops := httpserver.New(httpserver.HealthFunc(func(ctx context.Context) error {
			if err := rt.CheckHealth(ctx); err != nil {
				return err
			}
			return p.CheckHealth(ctx)
		}), p.Status, logger)
		g.Go(func() error {
			if err := ops.ListenAndServe(gctx, cfg.Metrics.Address); err != nil && gctx.Err() == nil {
				logger.Error("ops endpoint failed", logpkg.Err(err))
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("processor stopped", logpkg.Err(err))
		return err
	}
	logger.Info("processor stopped")
	return nil
}

func reload(ctx context.Context, p *processor.Processor, path string, logger logpkg.Logger) {
	if path == "" {
		logger.Warn("reload requested but no configuration file is in use")
		return
	}
	profiles, err := config.ReloadProfiles(path)
	if err != nil {
		logger.Error("reload failed, keeping current profiles", logpkg.Err(err))
		return
	}
	logProfiles(logger, profiles)
	if err := p.Reload(ctx, profiles); err != nil {
		logger.Error("reload failed", logpkg.Err(err))
	}
}

// logProfiles relies on the default redaction of nickserv_password.
func logProfiles(logger logpkg.Logger, profiles []config.NetworkProfile) {
	for _, prof := range profiles {
		logger.Debug("network profile",
			logpkg.Profile(prof.Name),
			logpkg.Bool("connect", prof.Connect),
			logpkg.Int("servers", len(prof.Servers)),
			logpkg.Int("channels", len(prof.Channels)),
			logpkg.Str("nickserv_password", prof.NickServPassword),
		)
	}
}
