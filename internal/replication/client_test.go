package replication

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnector accepts one connection, checks the password and runs script.
func fakeConnector(t *testing.T, password string, script func(r *bufio.Reader, conn net.Conn)) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") != password {
			return
		}
		script(r, conn)
	}()
	return l.Addr().String()
}

func TestClientSnapshotAndLiveEvents(t *testing.T) {
	got := make(chan string, 1)
	addr := fakeConnector(t, "hunter2", func(r *bufio.Reader, conn net.Conn) {
		_, _ = conn.Write([]byte("active-connections\r\n5 2\r\n1 9\r\nlive-events\r\n"))
		_, _ = conn.Write([]byte("5 2 1700000000000 1 PING :abc\r\n"))
		_, _ = conn.Write([]byte("garbage\r\n"))
		_, _ = conn.Write([]byte("5 3 1700000000001 2 PONG :abc\r\n"))
		line, _ := r.ReadString('\n')
		got <- strings.TrimRight(line, "\r\n")
	})

	c, err := Dial(context.Background(), ClientOptions{Address: addr, Password: "hunter2", DialTimeout: time.Second})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, Snapshot{{ConnectionID: 1, NextSequence: 9}, {ConnectionID: 5, NextSequence: 2}}, c.Snapshot())

	ev := <-c.Events()
	assert.Equal(t, int64(5), ev.ConnectionID)
	assert.Equal(t, int64(2), ev.Sequence)
	assert.Equal(t, event.Receive, ev.Type)
	assert.Equal(t, "PING :abc", string(ev.Line))
	ev = <-c.Events()
	assert.Equal(t, int64(3), ev.Sequence, "malformed line must be skipped")

	require.NoError(t, c.Send(Send(5, []byte("PRIVMSG #x :hi"))))
	select {
	case line := <-got:
		assert.Equal(t, "send 5 PRIVMSG #x :hi", line)
	case <-time.After(5 * time.Second):
		t.Fatalf("command not received")
	}

	// the fake hangs up after the command
	for range c.Events() {
	}
	assert.Error(t, c.Err())
}

func TestClientBadPassword(t *testing.T) {
	addr := fakeConnector(t, "right", func(*bufio.Reader, net.Conn) {})
	_, err := Dial(context.Background(), ClientOptions{Address: addr, Password: "wrong", DialTimeout: time.Second})
	require.Error(t, err)
}

func TestClientContextCancelDuringSnapshot(t *testing.T) {
	addr := fakeConnector(t, "pw", func(r *bufio.Reader, conn net.Conn) {
		// never answers
		_, _ = r.ReadString('\n')
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, ClientOptions{Address: addr, Password: "pw"})
	require.Error(t, err)
}
