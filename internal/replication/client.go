package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/lineio"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

// ClientOptions configures Dial.
type ClientOptions struct {
	Address     string
	Password    string
	DialTimeout time.Duration
	// EventBuffer bounds live events held while the consumer is catching up.
	EventBuffer int
	Logger      logpkg.Logger
	// Dialer overrides net.Dialer, mostly for tests.
	Dialer func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Client is the Processor's attachment to the Connector.
type Client struct {
	conn     net.Conn
	reader   *lineio.Reader
	writer   *lineio.Writer
	snapshot Snapshot
	events   chan event.Event
	logger   logpkg.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Dial connects, authenticates and reads the snapshot. Live events start
// flowing on Events once Dial returns.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 65536
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	dial := opts.Dialer
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}
	dctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	conn, err := dial(dctx, "tcp", opts.Address)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("replication: dial %s: %w", opts.Address, err)
	}
	c := &Client{
		conn:   conn,
		reader: lineio.NewReader(conn, 0),
		writer: lineio.NewWriter(conn, lineio.WriterOptions{Newline: "\r\n"}),
		events: make(chan event.Event, opts.EventBuffer),
		logger: opts.Logger.With(logpkg.Component("replication")),
	}
	if err := c.writer.Enqueue([]byte(opts.Password)); err != nil {
		c.Close()
		return nil, err
	}

	// the snapshot waits on an archive flush, so only ctx bounds it
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	snap, err := ReadSnapshot(c.reader)
	stop()
	if err != nil {
		c.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("replication: connector closed the connection (bad password?): %w", err)
		}
		return nil, err
	}
	c.snapshot = snap
	go c.readLoop()
	return c, nil
}

// Snapshot returns the connections that were active at attach time.
func (c *Client) Snapshot() Snapshot { return c.snapshot }

// Events yields live events in production order. It is closed when the
// connection to the Connector ends; Err then reports why.
func (c *Client) Events() <-chan event.Event { return c.events }

// Err returns what ended the event stream: io.EOF when the connection was
// closed by either side, otherwise the read error.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues cmd for the Connector.
func (c *Client) Send(cmd Command) error {
	line := cmd.Encode()
	if line == nil {
		return fmt.Errorf("replication: cannot encode command kind %d", cmd.Kind)
	}
	return c.writer.Enqueue(line)
}

// Close drains queued commands and closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writer.Close()
	})
	select {
	case <-c.writer.Done():
	case <-time.After(5 * time.Second):
		_ = c.conn.Close()
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.setErr(err)
			} else {
				c.setErr(io.EOF)
			}
			return
		}
		if len(line) == 0 {
			continue
		}
		ev, err := event.Parse(line)
		if err != nil {
			c.logger.Warn("dropping malformed live line", logpkg.Err(err), logpkg.Str("line", string(line)))
			continue
		}
		c.events <- ev
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}
