package session

import (
	"testing"

	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfiles() Profiles {
	return Profiles{
		"libera": {
			Name:      "libera",
			Connect:   true,
			Servers:   []config.Server{{Host: "irc.libera.chat", Port: 6697, TLS: true}, {Host: "irc2.libera.chat", Port: 6697, TLS: true}},
			Nicknames: []string{"bot", "bot_"},
			Username:  "botuser",
			Realname:  "Mam Bot",
			Channels:  []string{"#chan", "#secret key123"},
		},
	}
}

// stream builds consecutive events for one connection.
type stream struct {
	id  int64
	seq int64
	evs []event.Event
}

func (s *stream) add(typ event.Type, line string) *stream {
	s.evs = append(s.evs, event.Event{ConnectionID: s.id, Sequence: s.seq, Timestamp: 1000 * (s.seq + 1), Type: typ, Line: []byte(line)})
	s.seq++
	return s
}

func (s *stream) conn(line string) *stream { return s.add(event.Connection, line) }
func (s *stream) recv(line string) *stream { return s.add(event.Receive, line) }
func (s *stream) send(line string) *stream { return s.add(event.Send, line) }

func applyAll(t *testing.T, ss *Sessions, evs []event.Event, profiles Profiles, mode Mode) Output {
	t.Helper()
	var all Output
	for _, ev := range evs {
		out, err := ss.Apply(ev, profiles, mode)
		require.NoError(t, err, "seq %d", ev.Sequence)
		all.Merge(out)
	}
	return all
}

func sendLines(out Output) []string {
	var lines []string
	for _, c := range out.Commands {
		lines = append(lines, string(c.Encode()))
	}
	return lines
}

func TestNicknameRetryThenRegister(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	profiles := testProfiles()
	s := &stream{id: 4}
	s.conn("connect libera").conn("opened 10.0.0.1")
	out := applyAll(t, ss, s.evs, profiles, Realtime)
	assert.Equal(t, []string{"send 4 NICK bot"}, sendLines(out))

	s.evs = nil
	s.send("NICK bot")
	out = applyAll(t, ss, s.evs, profiles, Realtime)
	assert.Equal(t, []string{"send 4 USER botuser 0 * :Mam Bot"}, sendLines(out))

	s.evs = nil
	s.send("USER botuser 0 * :Mam Bot").recv(":srv 433 * bot :Nickname is already in use")
	out = applyAll(t, ss, s.evs, profiles, Realtime)
	assert.Equal(t, []string{"send 4 NICK bot_"}, sendLines(out))

	s.evs = nil
	s.send("NICK bot_").recv(":srv 001 bot_ :Welcome to Libera")
	out = applyAll(t, ss, s.evs, profiles, Realtime)
	assert.Equal(t, []string{"send 4 JOIN #chan", "send 4 JOIN #secret :key123"}, sendLines(out))
	require.Len(t, out.Notices, 1)
	assert.Equal(t, NoticeRegistered, out.Notices[0].Kind)

	st, ok := ss.Get(4)
	require.True(t, ok)
	assert.Equal(t, Registered, st.Registration)
	assert.Equal(t, "bot_", st.Nickname)
	assert.Nil(t, st.Rejected)
}

func TestNicknamesExhaustedDisconnects(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 10.0.0.1").send("NICK bot").send("USER u 0 * :r").
		recv(":srv 433 * bot :in use").send("NICK bot_")
	applyAll(t, ss, s.evs, testProfiles(), Realtime)

	s.evs = nil
	s.recv(":srv 433 * bot_ :in use")
	out := applyAll(t, ss, s.evs, testProfiles(), Realtime)
	assert.Equal(t, []replication.Command{replication.Disconnect(1)}, out.Commands)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, NoticeNicknamesExhausted, out.Notices[0].Kind)

	// the closed that follows our disconnect is expected
	s.evs = nil
	s.conn("disconnect").recv("ERROR :Closing link").conn("closed")
	out = applyAll(t, ss, s.evs, testProfiles(), Realtime)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, NoticeClosedExpectedly, out.Notices[0].Kind)
	assert.Equal(t, 0, ss.Len())
}

func TestUnexpectedClose(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 2}
	s.conn("connect libera").conn("opened 10.0.0.1").conn("closed")
	out := applyAll(t, ss, s.evs, testProfiles(), Realtime)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, NoticeClosedUnexpectedly, out.Notices[0].Kind)
	assert.Equal(t, "libera", out.Notices[0].Profile)

	_, err := ss.Apply(event.Event{ConnectionID: 2, Sequence: 3, Type: event.Receive, Line: []byte("PING :x")}, testProfiles(), Realtime)
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

// The server may drop us after nickname exhaustion before our own
// disconnect is recorded.
func TestCloseAfterRequestedDisconnectIsExpected(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 3}
	s.conn("connect libera").conn("opened 10.0.0.1").send("NICK bot").send("USER u 0 * :r").
		recv(":srv 433 * bot :in use").send("NICK bot_").
		recv(":srv 433 * bot_ :in use").
		recv("ERROR :Closing link").conn("closed")
	out := applyAll(t, ss, s.evs, testProfiles(), Realtime)

	var kinds []NoticeKind
	for _, n := range out.Notices {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []NoticeKind{NoticeNicknamesExhausted, NoticeClosedExpectedly}, kinds)
	assert.NotContains(t, kinds, NoticeClosedUnexpectedly)
	assert.Equal(t, 0, ss.Len())
}

func TestMergeKeepsProfile(t *testing.T) {
	var all Output
	all.Merge(Output{})
	all.Merge(Output{Profile: "libera", Notices: []Notice{{Kind: NoticeRegistered}}})
	all.Merge(Output{Profile: "oftc"})
	assert.Equal(t, "libera", all.Profile)
	assert.Len(t, all.Notices, 1)
}

func TestPingRealtimeAndReplay(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").recv("PING :tok1")
	out := applyAll(t, ss, s.evs, testProfiles(), Replay)
	assert.Empty(t, out.Commands)
	st, _ := ss.Get(1)
	assert.Equal(t, []string{"tok1"}, st.PendingPongs)

	s.evs = nil
	s.send("PONG :tok1").recv("PING :tok2")
	out = applyAll(t, ss, s.evs, testProfiles(), Realtime)
	assert.Empty(t, st.PendingPongs)
	assert.Equal(t, []string{"send 1 PONG :tok2"}, sendLines(out))
}

func TestMembershipFolding(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").send("NICK Bot").recv(":srv 001 Bot :hi").
		recv(":bot!u@h JOIN #Foo[x]").
		recv(":Alice!a@h JOIN #foo{x}").
		recv(":ALICE!a@h NICK alice^").
		recv(":carol!c@h JOIN #FOO[X]")
	applyAll(t, ss, s.evs, testProfiles(), Replay)

	st, _ := ss.Get(1)
	require.Equal(t, 1, st.Channels.Len())
	ch, ok := st.Channels.Get("#fOO{X}")
	require.True(t, ok)
	assert.Equal(t, "#Foo[x]", ch.Name)
	assert.True(t, ch.Members.Has("ALICE~"))
	assert.False(t, ch.Members.Has("alice"))
	assert.Equal(t, []string{"alice^", "carol"}, ch.Members.Names())
}

func TestDoublePartIsNoop(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").send("NICK bot").recv(":srv 001 bot :hi").
		recv(":bot!u@h JOIN #a").recv(":x!u@h JOIN #a").
		recv(":x!u@h PART #a").recv(":x!u@h PART #a").
		recv(":y!u@h PART #nowhere").recv(":z!u@h QUIT :bye").
		recv(":op!u@h KICK #a ghost :gone")
	assert.NotPanics(t, func() { applyAll(t, ss, s.evs, testProfiles(), Replay) })
	st, _ := ss.Get(1)
	ch, ok := st.Channels.Get("#a")
	require.True(t, ok)
	assert.Equal(t, 0, ch.Members.Len())

	s.evs = nil
	s.recv(":op!u@h KICK #A bot :out")
	applyAll(t, ss, s.evs, testProfiles(), Replay)
	assert.False(t, st.Channels.Has("#a"))
}

func TestNamesReplyProducesOneUpdate(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").send("NICK bot").recv(":srv 001 bot :hi").
		recv(":bot!u@h JOIN #a").recv(":old!u@h JOIN #a")
	applyAll(t, ss, s.evs, testProfiles(), Replay)

	s.evs = nil
	s.recv(":srv 353 bot = #a :@alice +bob carol").
		recv(":srv 353 bot = #a :~dave alice %erin").
		recv(":srv 366 bot #a :End of /NAMES list.")
	out := applyAll(t, ss, s.evs, testProfiles(), Replay)
	var names []Update
	for _, u := range out.Updates {
		if u.Kind == "NAMES" {
			names = append(names, u)
		}
	}
	require.Len(t, names, 1)
	assert.Equal(t, "#a", names[0].Party)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave", "erin"}, names[0].Args)

	st, _ := ss.Get(1)
	ch, _ := st.Channels.Get("#a")
	assert.False(t, ch.Members.Has("old"))
	assert.Equal(t, 5, ch.Members.Len())
}

func TestTopics(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").send("NICK bot").recv(":srv 001 bot :hi").
		recv(":bot!u@h JOIN #a").
		recv(":srv 332 bot #a :old topic").
		recv(":srv 333 bot #a setter 1700000000")
	applyAll(t, ss, s.evs, testProfiles(), Replay)
	st, _ := ss.Get(1)
	ch, _ := st.Channels.Get("#a")
	assert.Equal(t, "old topic", ch.Topic)
	assert.Equal(t, "setter", ch.TopicSetBy)
	assert.Equal(t, int64(1700000000000), ch.TopicSetAt)

	s.evs = nil
	s.recv(":eve!e@h TOPIC #a :new topic")
	applyAll(t, ss, s.evs, testProfiles(), Replay)
	assert.Equal(t, "new topic", ch.Topic)
	assert.Equal(t, "eve", ch.TopicSetBy)
	assert.Equal(t, s.evs[0].Timestamp, ch.TopicSetAt)

	s.evs = nil
	s.recv(":srv 331 bot #a :No topic is set")
	applyAll(t, ss, s.evs, testProfiles(), Replay)
	assert.Equal(t, "", ch.Topic)
}

func TestNickServIdentifyIsMasked(t *testing.T) {
	profiles := testProfiles()
	p := profiles["libera"]
	p.NickServPassword = "pa55"
	profiles["libera"] = p

	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").send("NICK bot").send("USER u 0 * :r")
	applyAll(t, ss, s.evs, profiles, Realtime)

	s.evs = nil
	s.recv(":srv 001 bot :hi")
	out := applyAll(t, ss, s.evs, profiles, Realtime)
	require.NotEmpty(t, out.Commands)
	assert.Equal(t, "send 1 PRIVMSG NickServ :IDENTIFY pa55", string(out.Commands[0].Encode()))

	s.evs = nil
	s.send("PRIVMSG NickServ :IDENTIFY pa55")
	out = applyAll(t, ss, s.evs, profiles, Realtime)
	require.Len(t, out.Updates, 1)
	assert.Equal(t, []string{"bot", "IDENTIFY ********"}, out.Updates[0].Args)
	st, _ := ss.Get(1)
	assert.True(t, st.SentNickServ)
}

func TestMessagesRouteToWindows(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").send("NICK bot").recv(":srv 001 bot :hi")
	applyAll(t, ss, s.evs, testProfiles(), Replay)

	s.evs = nil
	s.recv(":alice!a@h PRIVMSG #a :hello all").
		recv(":alice!a@h PRIVMSG bot :psst").
		recv(":srv MODE bot +i").
		recv(":op!o@h MODE #a +o alice").
		send("PRIVMSG alice :hi back")
	out := applyAll(t, ss, s.evs, testProfiles(), Replay)
	require.Len(t, out.Updates, 5)
	assert.Equal(t, Update{Party: "#a", Kind: "PRIVMSG", Args: []string{"alice", "hello all"}}, out.Updates[0])
	assert.Equal(t, "alice", out.Updates[1].Party)
	assert.Equal(t, Update{Party: "", Kind: "MODE", Args: []string{"srv", "+i"}}, out.Updates[2])
	assert.Equal(t, Update{Party: "#a", Kind: "MODE", Args: []string{"op", "+o alice"}}, out.Updates[3])
	assert.Equal(t, Update{Party: "alice", Kind: "PRIVMSG+OUTGOING", Args: []string{"bot", "hi back"}}, out.Updates[4])
	assert.Equal(t, "libera", out.Profile)
}

func TestRegistrationRegressionPanics(t *testing.T) {
	st := NewState(1, "libera")
	st.setRegistration(Opened)
	assert.Panics(t, func() { st.setRegistration(Opened) })
	st.setRegistration(Registered)
	assert.Panics(t, func() { st.setRegistration(NickSent) })
}

func TestValidStreamsNeverRegress(t *testing.T) {
	// repeated welcomes, late NICK/USER and stray numerics must not trip
	// the registration assertion
	s := &stream{id: 1}
	s.conn("connect libera").conn("opened 1.2.3.4").
		recv(":srv NOTICE * :Looking up your hostname").
		send("NICK bot").send("USER u 0 * :r").send("NICK bot2").send("USER u 0 * :r").
		recv(":srv 001 bot2 :hi").recv(":srv 002 bot2 :host").recv(":srv 005 bot2 A B :are supported").
		recv(":srv 433 bot2 bot :in use").
		send("NICK bot3").recv(":bot2!u@h NICK bot3").
		recv(":srv 001 bot3 :again")
	for _, mode := range []Mode{Replay, Realtime} {
		ss := NewSessions(NewMachine(nil))
		assert.NotPanics(t, func() { applyAll(t, ss, s.evs, testProfiles(), mode) }, mode.String())
		st, _ := ss.Get(1)
		assert.Equal(t, Registered, st.Registration)
		assert.Equal(t, "bot3", st.Nickname)
	}
}

func TestUnparsableLinesAreDropped(t *testing.T) {
	ss := NewSessions(NewMachine(nil))
	s := &stream{id: 1}
	s.conn("connect libera").recv(":onlyprefix").recv("PING :still alive")
	applyAll(t, ss, s.evs, testProfiles(), Replay)
	st, _ := ss.Get(1)
	assert.Equal(t, []string{"still alive"}, st.PendingPongs)
}
