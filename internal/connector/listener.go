package connector

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/nayuki/MamIRC-sub000/internal/lineio"
	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

// ListenerOptions configures the Processor-facing listener.
type ListenerOptions struct {
	Password    string
	AuthTimeout time.Duration
	Logger      logpkg.Logger
}

// Listener accepts Processor connections for a Supervisor.
type Listener struct {
	sup    *Supervisor
	opts   ListenerOptions
	logger logpkg.Logger
}

func NewListener(sup *Supervisor, opts ListenerOptions) *Listener {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Listener{sup: sup, opts: opts, logger: opts.Logger.With(logpkg.Component("listener"))}
}

// Serve accepts on ln until ctx is cancelled or the supervisor stops.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	go func() {
		<-l.sup.Done()
		_ = ln.Close()
	}()
	l.logger.Info("listening for processor", logpkg.Str("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	id := uuid.NewString()
	logger := l.logger.With(logpkg.Str("subscriber", id), logpkg.Str("remote", conn.RemoteAddr().String()))

	// the timer unblocks the password read by closing the socket
	timer := time.AfterFunc(l.opts.AuthTimeout, func() { _ = conn.Close() })
	r := lineio.NewReader(conn, lineio.DefaultMaxLineLength)
	line, err := r.ReadLine()
	if !timer.Stop() {
		metrics.AuthFailures.Inc()
		logger.Debug("authentication timed out")
		return
	}
	if err != nil || subtle.ConstantTimeCompare(line, []byte(l.opts.Password)) != 1 {
		metrics.AuthFailures.Inc()
		logger.Debug("authentication failed")
		_ = conn.Close()
		return
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	var sub *subscriber
	var attachErr error
	if err := l.sup.call(func() { sub, attachErr = l.sup.attach(id, conn) }); err != nil || attachErr != nil {
		if attachErr != nil {
			logger.Warn("attach failed", logpkg.Err(attachErr))
		}
		_ = conn.Close()
		return
	}
	defer l.sup.post(func() { l.sup.detach(sub) })

	for {
		line, err := r.ReadLine()
		if err != nil {
			return
		}
		if len(line) == 0 {
			continue
		}
		cmd, err := replication.ParseCommand(line)
		if err != nil {
			logger.Warn("dropping malformed command", logpkg.Err(err))
			continue
		}
		if !l.sup.post(func() { l.sup.command(sub, cmd) }) {
			return
		}
	}
}
