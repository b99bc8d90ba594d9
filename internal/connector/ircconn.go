package connector

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/nayuki/MamIRC-sub000/internal/lineio"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

// runConnection dials one IRC server and pumps received lines into the
// actor until the socket ends. It always reports the close.
func (s *Supervisor) runConnection(ctx context.Context, id int64, host string, port int, useTLS bool) {
	var cause error
	defer func() {
		s.post(func() { s.closed(id, cause) })
	}()

	conn, err := s.dialIRC(ctx, host, port, useTLS)
	if err != nil {
		cause = err
		s.logger.Warn("dial failed", logpkg.ConnectionID(id), logpkg.Err(err))
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	accepted := make(chan bool, 1)
	if !s.post(func() { accepted <- s.opened(id, conn, remoteIP(conn)) }) || !<-accepted {
		_ = conn.Close()
		return
	}

	r := lineio.NewReader(conn, s.opts.MaxLineLength)
	for {
		line, err := r.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				cause = err
			}
			break
		}
		if len(line) == 0 || bytes.IndexByte(line, 0) >= 0 {
			continue
		}
		if !s.post(func() { s.received(id, line) }) {
			break
		}
	}
	_ = conn.Close()
}

func (s *Supervisor) dialIRC(ctx context.Context, host string, port int, useTLS bool) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	conn, err := s.opts.Dial(dctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	if !useTLS {
		return conn, nil
	}
	tc := tls.Client(conn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: s.opts.InsecureSkipVerify,
	})
	if err := tc.HandshakeContext(dctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tc, nil
}

// remoteIP renders the peer address without port, as recorded in the
// opened event.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
