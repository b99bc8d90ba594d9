package connector

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	events  []event.Event
	flushes int
}

func (m *memSink) Append(ev event.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *memSink) Flush() <-chan error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (m *memSink) snapshot() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}

func (m *memSink) waitFor(t *testing.T, pred func(event.Event) bool) event.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range m.snapshot() {
			if pred(ev) {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event not produced; have %v", m.snapshot())
	return event.Event{}
}

func isConn(id int64, line string) func(event.Event) bool {
	return func(ev event.Event) bool {
		return ev.ConnectionID == id && ev.Type == event.Connection && string(ev.Line) == line
	}
}

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func startSupervisor(t *testing.T, opts Options) (*Supervisor, *memSink) {
	t.Helper()
	sink := &memSink{}
	opts.Sink = sink
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	sup := NewSupervisor(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return sup, sink
}

// fakeIRC accepts one client, writes greeting and forwards received lines.
func fakeIRC(t *testing.T, greeting string) (host string, port int, received chan string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	received = make(chan string, 16)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte(greeting))
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(received)
				return
			}
			received <- strings.TrimRight(line, "\r\n")
		}
	}()
	h, p, _ := net.SplitHostPort(l.Addr().String())
	port, _ = strconv.Atoi(p)
	return h, port, received
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, p, _ := net.SplitHostPort(l.Addr().String())
	l.Close()
	port, _ := strconv.Atoi(p)
	return port
}

func assertContiguous(t *testing.T, evs []event.Event) {
	t.Helper()
	next := map[int64]int64{}
	for _, ev := range evs {
		require.Equal(t, next[ev.ConnectionID], ev.Sequence, "connection %d", ev.ConnectionID)
		next[ev.ConnectionID]++
	}
}

func TestConnectionLifecycle(t *testing.T) {
	greeting := "PING :abc\r\nbad\x00line\r\n" + strings.Repeat("x", 1200) + "\r\n:srv NOTICE * :hi\r\n"
	host, port, received := fakeIRC(t, greeting)
	sup, sink := startSupervisor(t, Options{NextConnectionID: 5})

	id, err := sup.Connect(host, port, false, "libera")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	sink.waitFor(t, func(ev event.Event) bool { return ev.Type == event.Receive && string(ev.Line) == ":srv NOTICE * :hi" })
	require.NoError(t, sup.Send(id, []byte("PONG :abc")))
	select {
	case line := <-received:
		assert.Equal(t, "PONG :abc", line)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not receive line")
	}
	sink.waitFor(t, func(ev event.Event) bool { return ev.Type == event.Send && string(ev.Line) == "PONG :abc" })

	require.NoError(t, sup.Disconnect(id))
	sink.waitFor(t, isConn(id, "closed"))

	evs := sink.snapshot()
	assertContiguous(t, evs)
	assert.Equal(t, "connect libera", string(evs[0].Line))
	assert.Equal(t, "opened 127.0.0.1", string(evs[1].Line))
	var receives []string
	sawDisconnect := false
	for _, ev := range evs {
		if ev.Type == event.Receive {
			receives = append(receives, string(ev.Line))
		}
		if isConn(id, "disconnect")(ev) {
			sawDisconnect = true
		}
		assert.Equal(t, int64(1700000000000), ev.Timestamp)
	}
	assert.Equal(t, []string{"PING :abc", ":srv NOTICE * :hi"}, receives)
	assert.True(t, sawDisconnect)
	assert.True(t, event.IsClosed(evs[len(evs)-1]))
}

func TestDialFailureClosesConnection(t *testing.T) {
	sup, sink := startSupervisor(t, Options{ConnectTimeout: time.Second})
	id, err := sup.Connect("127.0.0.1", closedPort(t), false, "oftc")
	require.NoError(t, err)
	sink.waitFor(t, isConn(id, "closed"))
	evs := sink.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, "connect oftc", string(evs[0].Line))
	assertContiguous(t, evs)

	// a second connection gets the next id
	id2, err := sup.Connect("127.0.0.1", closedPort(t), false, "oftc")
	require.NoError(t, err)
	assert.Equal(t, id+1, id2)
}

func TestSendValidation(t *testing.T) {
	sup, _ := startSupervisor(t, Options{})
	assert.ErrorIs(t, sup.Send(0, []byte("PRIVMSG #a :x\r\nQUIT")), event.ErrUncleanLine)
	// unknown connections are dropped without error
	assert.NoError(t, sup.Send(99, []byte("PING :x")))
	assert.NoError(t, sup.Disconnect(99))
}

// blockingDial never completes until its context is cancelled.
func blockingDial(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func readLines(t *testing.T, r *bufio.Reader, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		out = append(out, strings.TrimRight(line, "\r\n"))
	}
	return out
}

func TestAttachSnapshotThenLiveEvents(t *testing.T) {
	sup, sink := startSupervisor(t, Options{Dial: blockingDial})
	id, err := sup.Connect("irc.example.net", 6667, false, "example")
	require.NoError(t, err)

	server, client := net.Pipe()
	defer client.Close()
	var attachErr error
	require.NoError(t, sup.call(func() { _, attachErr = sup.attach("sub-1", server) }))
	require.NoError(t, attachErr)

	r := bufio.NewReader(client)
	assert.Equal(t, []string{"active-connections", "0 1", "live-events"}, readLines(t, r, 3))

	done := make(chan error, 1)
	go func() { done <- sup.Disconnect(id) }()
	assert.Equal(t, []string{
		"0 1 1700000000000 0 disconnect",
		"0 2 1700000000000 0 closed",
	}, readLines(t, r, 2))
	require.NoError(t, <-done)

	sink.mu.Lock()
	assert.GreaterOrEqual(t, sink.flushes, 1)
	sink.mu.Unlock()
}

func TestNewAttachReplacesOld(t *testing.T) {
	sup, _ := startSupervisor(t, Options{})
	s1, c1 := net.Pipe()
	s2, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	var first, second *subscriber
	require.NoError(t, sup.call(func() { first, _ = sup.attach("a", s1) }))
	r1 := bufio.NewReader(c1)
	readLines(t, r1, 2)

	require.NoError(t, sup.call(func() { second, _ = sup.attach("b", s2) }))
	require.NotNil(t, second)
	readLines(t, bufio.NewReader(c2), 2)

	_, err := r1.ReadString('\n')
	assert.Error(t, err, "old subscriber socket must be closed")

	// commands from the replaced subscriber are ignored
	require.NoError(t, sup.call(func() { sup.command(first, replicationConnect()) }))
	st, err := sup.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Connections)
	assert.Equal(t, "b", st.Subscriber)
}

func TestTerminateClosesConnectionsAndStops(t *testing.T) {
	host, port, _ := fakeIRC(t, "")
	sup, sink := startSupervisor(t, Options{})
	id, err := sup.Connect(host, port, false, "libera")
	require.NoError(t, err)
	sink.waitFor(t, func(ev event.Event) bool { return ev.ConnectionID == id && ev.Sequence == 1 })

	sup.Terminate()
	select {
	case <-sup.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop")
	}
	evs := sink.snapshot()
	assertContiguous(t, evs)
	assert.True(t, event.IsClosed(evs[len(evs)-1]))
	_, err = sup.Connect(host, port, false, "libera")
	assert.ErrorIs(t, err, ErrStopped)
}
