package connectorrun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/connector"
	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	httpserver "github.com/nayuki/MamIRC-sub000/internal/server/http"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

var ErrArchiverStopped = errors.New("connectorrun: archiver stopped")

type Options struct {
	ConfigPath string
	// Config is used when ConfigPath is empty.
	Config *config.ConnectorConfig
	// LogLevel and LogFormat override the configured logger when set.
	LogLevel  string
	LogFormat string
	// Listener replaces listening on Listen.Address, mostly for tests.
	Listener net.Listener
	// Logger replaces the configured logger, mostly for tests.
	Logger logpkg.Logger
}

func loadConfig(opts Options) (config.ConnectorConfig, error) {
	if opts.ConfigPath != "" {
		return config.LoadConnector(opts.ConfigPath)
	}
	if opts.Config == nil {
		return config.ConnectorConfig{}, errors.New("connectorrun: no configuration")
	}
	cfg := *opts.Config
	if err := cfg.Validate(); err != nil {
		return config.ConnectorConfig{}, err
	}
	return cfg, nil
}

// Run starts the Connector and blocks until it terminates. It returns nil
// after a Terminate command or a signal, and the archive failure when the
// archiver stops on a commit error.
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
	logger = logger.With(logpkg.Component("connector"))

	store, err := archive.Open(sctx, archive.Options{
		Driver:  cfg.Archive.Driver,
		Path:    cfg.Archive.Path,
		DSN:     cfg.Archive.DSN,
		Migrate: true,
	})
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	rec, err := archive.Recover(sctx, store, func() int64 { return time.Now().UnixMilli() })
	if err != nil {
		return fmt.Errorf("recover archive: %w", err)
	}
	for _, id := range rec.Sealed {
		logger.Warn("sealed connection left open by previous run", logpkg.ConnectionID(id))
	}

	logger.Info("Starting MamIRC connector",
		logpkg.Str("listen", cfg.Listen.Address),
		logpkg.Str("archive", cfg.Archive.Driver),
		logpkg.Str("metrics", cfg.Metrics.Address),
		logpkg.Int64("next_connection_id", rec.NextConnectionID),
	)

	runCtx, cancel := context.WithCancelCause(sctx)
	defer cancel(nil)

	arch := archive.NewArchiver(store, archive.ArchiverOptions{
		GatherWindow: cfg.Archive.GatherWindow.D(),
		MaxBatch:     cfg.Archive.MaxBatch,
		QueueSize:    cfg.Archive.QueueSize,
		Logger:       logger,
		Metrics:      metrics.Archive{},
		OnFatal: func(err error) {
			cancel(fmt.Errorf("%w: %w", ErrArchiverStopped, err))
		},
	})
	sup := connector.NewSupervisor(connector.Options{
		Sink:               arch,
		NextConnectionID:   rec.NextConnectionID,
		ConnectTimeout:     cfg.IRC.ConnectTimeout.D(),
		MaxLineLength:      cfg.IRC.MaxLineLength,
		InsecureSkipVerify: cfg.IRC.InsecureSkipVerify,
		SubscriberQueue:    cfg.Listen.SubscriberQueue,
		Logger:             logger,
	})

	ln := opts.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", cfg.Listen.Address)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Listen.Address, err)
		}
	}

	// The archiver outlives the supervisor so that the closed events of a
	// shutdown are committed.
	archCtx, archCancel := context.WithCancel(context.Background())
	defer archCancel()

	var g errgroup.Group
	g.Go(func() error { return arch.Run(archCtx) })
	g.Go(func() error {
		defer archCancel()
		defer cancel(nil)
		return sup.Run(runCtx)
	})
	g.Go(func() error {
		l := connector.NewListener(sup, connector.ListenerOptions{
			Password:    cfg.Listen.Password,
			AuthTimeout: cfg.Listen.AuthTimeout.D(),
			Logger:      logger,
		})
		if err := l.Serve(runCtx, ln); err != nil {
			cancel(err)
			return fmt.Errorf("listener: %w", err)
		}
		return nil
	})
	if cfg.Metrics.Address != "" {
		health := httpserver.HealthFunc(func(ctx context.Context) error {
			if err := arch.Err(); err != nil {
				return err
			}
			select {
			case <-sup.Done():
				return connector.ErrStopped
			default:
				return nil
			}
		})
		ops := httpserver.New(health, func(ctx context.Context) (any, error) { return sup.Status(ctx) }, logger)
		g.Go(func() error {
			if err := ops.ListenAndServe(runCtx, cfg.Metrics.Address); err != nil && runCtx.Err() == nil {
				logger.Error("ops endpoint failed", logpkg.Err(err))
			}
			return nil
		})
	}

	err = g.Wait()
	if cause := context.Cause(runCtx); errors.Is(cause, ErrArchiverStopped) {
		return cause
	}
	if err != nil {
		return err
	}
	logger.Info("connector stopped")
	return nil
}
