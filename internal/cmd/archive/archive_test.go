package archivecmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/msglog"
	"github.com/nayuki/MamIRC-sub000/internal/runtime"
)

func seedArchive(t *testing.T, evs []event.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.sqlite")
	store, err := archive.Open(context.Background(), archive.Options{Driver: "sqlite", Path: path, Migrate: true})
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), evs))
	require.NoError(t, store.Close())
	return path
}

func ev(conn, seq, ts int64, typ event.Type, line string) event.Event {
	return event.Event{ConnectionID: conn, Sequence: seq, Timestamp: ts, Type: typ, Line: []byte(line)}
}

func healthyHistory() []event.Event {
	return []event.Event{
		ev(0, 0, 1000, event.Connection, "connect libera"),
		ev(0, 1, 1010, event.Connection, "opened 10.0.0.1"),
		ev(0, 2, 1020, event.Send, "NICK bot"),
		ev(0, 3, 1030, event.Receive, ":irc.example 001 bot :Welcome"),
		ev(0, 4, 1040, event.Receive, ":alice!a@h PRIVMSG #chan :hello"),
		ev(0, 5, 1500, event.Connection, "closed"),
		ev(1, 0, 2000, event.Connection, "connect oftc"),
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestDump(t *testing.T) {
	path := seedArchive(t, healthyHistory())

	tests := []struct {
		name  string
		args  []string
		lines []string
	}{
		{
			name:  "limit",
			args:  []string{"--limit", "2"},
			lines: []string{"0 0 1000 0 connect libera", "0 1 1010 0 opened 10.0.0.1"},
		},
		{
			name:  "one connection",
			args:  []string{"--connection", "1"},
			lines: []string{"1 0 2000 0 connect oftc"},
		},
		{
			name:  "filter",
			args:  []string{"--filter", `command == "PRIVMSG" && source == "alice"`},
			lines: []string{"0 4 1040 1 :alice!a@h PRIVMSG #chan :hello"},
		},
		{
			name:  "filter on kind",
			args:  []string{"--filter", `kind == "send"`},
			lines: []string{"0 2 1020 2 NICK bot"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"dump", "--path", path}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.lines, strings.Split(strings.TrimSpace(out), "\n"))
		})
	}
}

func TestDumpRejectsBadFilter(t *testing.T) {
	path := seedArchive(t, healthyHistory())
	_, err := execute(t, "dump", "--path", path, "--filter", "connection + 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --filter")
}

func TestCheck(t *testing.T) {
	path := seedArchive(t, healthyHistory())
	out, err := execute(t, "check", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "checked 7 events, 0 problems")

	broken := seedArchive(t, []event.Event{
		ev(0, 0, 1000, event.Connection, "connect libera"),
		ev(0, 2, 1010, event.Connection, "opened 10.0.0.1"),
	})
	out, err = execute(t, "check", "--path", broken)
	require.ErrorIs(t, err, ErrProblemsFound)
	assert.Contains(t, out, "connection 0, sequence 2")
}

func TestStats(t *testing.T) {
	path := seedArchive(t, healthyHistory())
	out, err := execute(t, "stats", "--path", path)
	require.NoError(t, err)

	var got struct {
		Connections []ConnectionStats `json:"connections"`
		Events      int64             `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, int64(7), got.Events)
	require.Len(t, got.Connections, 2)
	assert.Equal(t, ConnectionStats{
		ConnectionID: 0, Profile: "libera", Events: 6,
		FirstTimestamp: 1000, LastTimestamp: 1500, DurationMs: 500, Closed: true,
	}, got.Connections[0])
	assert.Equal(t, "oftc", got.Connections[1].Profile)
	assert.False(t, got.Connections[1].Closed)
}

func TestWindowsAndMessages(t *testing.T) {
	dir := t.TempDir()
	rt, err := runtime.Open(runtime.Options{DataDir: dir})
	require.NoError(t, err)
	var pending []msglog.Pending
	for i, text := range []string{"one", "two", "three"} {
		pending = append(pending, msglog.Pending{Party: "#chan", Message: msglog.Message{
			ConnectionID: 0, EventSeq: int64(10 + i), Timestamp: int64(1000 + i), Kind: "PRIVMSG", Args: []string{"alice", text},
		}})
	}
	n, err := rt.Messages().Append(context.Background(), "libera", pending)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, rt.Close())

	out, err := execute(t, "windows", "--data-dir", dir)
	require.NoError(t, err)
	var wins []windowView
	require.NoError(t, json.Unmarshal([]byte(out), &wins))
	require.Len(t, wins, 1)
	assert.Equal(t, windowView{Profile: "libera", Party: "#chan", Entries: 3, Unread: 3, LastTimestamp: 1002}, wins[0])

	out, err = execute(t, "messages", "--data-dir", dir, "--profile", "libera", "--party", "#CHAN", "--limit", "2")
	require.NoError(t, err)
	var page struct {
		Items []messageView `json:"items"`
		Next  uint64        `json:"next"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, []string{"alice", "one"}, page.Items[0].Args)
	assert.Equal(t, uint64(3), page.Next)

	_, err = execute(t, "messages", "--data-dir", dir, "--profile", "libera")
	require.Error(t, err)
}
