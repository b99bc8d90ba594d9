package session

import (
	"strconv"
	"strings"

	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/irc"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

const nickServ = "NickServ"

// maskedIdentify replaces the NickServ secret in window updates.
const maskedIdentify = "IDENTIFY ********"

// Machine applies events to session state.
type Machine struct {
	logger logpkg.Logger
}

func NewMachine(logger logpkg.Logger) *Machine {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Machine{logger: logger.With(logpkg.Component("session"))}
}

// Apply folds ev into st. profile may be nil when the session's profile
// no longer exists; commands that need it are then skipped. Apply is
// deterministic: the same state, profile, event and mode always produce
// the same result.
func (m *Machine) Apply(st *State, profile *config.NetworkProfile, ev event.Event, mode Mode) Output {
	var out Output
	switch ev.Type {
	case event.Connection:
		m.applyConnection(st, profile, ev, mode, &out)
	case event.Receive:
		msg, err := irc.Parse(ev.Line)
		if err != nil {
			m.logger.Warn("dropping unparsable line", logpkg.ConnectionID(ev.ConnectionID), logpkg.Int64("seq", ev.Sequence), logpkg.Err(err))
			return out
		}
		m.applyReceive(st, profile, ev, msg, mode, &out)
	case event.Send:
		msg, err := irc.Parse(ev.Line)
		if err != nil {
			m.logger.Warn("dropping unparsable sent line", logpkg.ConnectionID(ev.ConnectionID), logpkg.Int64("seq", ev.Sequence), logpkg.Err(err))
			return out
		}
		m.applySend(st, profile, msg, mode, &out)
	}
	return out
}

func (m *Machine) applyConnection(st *State, profile *config.NetworkProfile, ev event.Event, mode Mode, out *Output) {
	lc, err := event.ParseLifecycle(ev.Line)
	if err != nil {
		m.logger.Warn("dropping malformed connection event", logpkg.ConnectionID(ev.ConnectionID), logpkg.Err(err))
		return
	}
	switch lc.Kind {
	case event.KindConnect:
		out.update("", "CONNECT", lc.Profile)
	case event.KindOpened:
		st.setRegistration(Opened)
		out.update("", "OPENED", lc.Addr)
		if mode == Realtime && profile != nil && len(profile.Nicknames) > 0 {
			out.command(replication.Send(st.ConnectionID, irc.Line("NICK", profile.Nicknames[0])))
		}
	case event.KindDisconnect:
		out.update("", "DISCONNECT")
	case event.KindClosed:
		out.update("", "CLOSED")
	}
}

func isChannelName(s string) bool {
	return s != "" && (s[0] == '#' || s[0] == '&')
}

func (m *Machine) applyReceive(st *State, profile *config.NetworkProfile, ev event.Event, msg irc.Message, mode Mode, out *Output) {
	id := st.ConnectionID
	switch msg.Command {
	case "PING":
		token := msg.Param(0)
		if mode == Realtime {
			out.command(replication.Send(id, irc.LineTrailing("PONG", token)))
		} else {
			st.PendingPongs = append(st.PendingPongs, token)
		}
		return

	case "432", "433":
		if st.Registration < Registered {
			st.rejectNickname()
			if mode == Realtime {
				nextNickOrDisconnect(st, profile, out)
			}
		}

	case "001", "002", "003", "004", "005":
		if st.Registration < Registered {
			if nick := msg.Param(0); nick != "" {
				st.Nickname = nick
			}
			st.setRegistration(Registered)
			out.notice(NoticeRegistered, st)
			if mode == Realtime && profile != nil {
				identify(st, profile, out)
				joinMissing(st, profile, out)
			}
		}

	case "NICK":
		from, to := msg.Nick(), msg.Param(0)
		if to == "" {
			return
		}
		if st.isMe(from) {
			st.Nickname = to
			out.update("", "NICK", from, to)
		}
		st.Channels.Range(func(name string, ch *Channel) bool {
			if ch.Members.Has(from) {
				ch.Members.Delete(from)
				ch.Members.Set(to, struct{}{})
				out.update(ch.Name, "NICK", from, to)
			}
			return true
		})

	case "JOIN":
		who, chanName := msg.Nick(), msg.Param(0)
		if chanName == "" {
			return
		}
		if st.isMe(who) {
			if !st.Channels.Has(chanName) {
				st.Channels.Set(chanName, newChannel(chanName))
			}
		} else if ch, ok := st.Channels.Get(chanName); ok {
			ch.Members.Set(who, struct{}{})
		} else {
			return
		}
		ch, _ := st.Channels.Get(chanName)
		out.update(ch.Name, "JOIN", who, userPart(msg.Source), hostPart(msg.Source))

	case "PART":
		who, chanName := msg.Nick(), msg.Param(0)
		ch, ok := st.Channels.Get(chanName)
		if !ok {
			return
		}
		out.update(ch.Name, "PART", who, msg.Param(1))
		if st.isMe(who) {
			st.Channels.Delete(chanName)
		} else {
			ch.Members.Delete(who)
		}

	case "KICK":
		chanName, target := msg.Param(0), msg.Param(1)
		ch, ok := st.Channels.Get(chanName)
		if !ok {
			return
		}
		out.update(ch.Name, "KICK", msg.Nick(), target, msg.Param(2))
		if st.isMe(target) {
			st.Channels.Delete(chanName)
		} else {
			ch.Members.Delete(target)
		}

	case "QUIT":
		who := msg.Nick()
		st.Channels.Range(func(_ string, ch *Channel) bool {
			if ch.Members.Delete(who) {
				out.update(ch.Name, "QUIT", who, msg.Param(0))
			}
			return true
		})

	case "353":
		ch, ok := st.Channels.Get(msg.Param(2))
		if !ok {
			return
		}
		if !ch.namesInProgress {
			ch.names.Clear()
			ch.namesInProgress = true
		}
		for _, name := range strings.Fields(msg.Param(3)) {
			name = strings.TrimLeft(name, "@+%&~!")
			if name != "" {
				ch.names.Set(name, struct{}{})
			}
		}
		return

	case "366":
		ch, ok := st.Channels.Get(msg.Param(1))
		if !ok || !ch.namesInProgress {
			return
		}
		ch.Members = ch.names
		ch.names = irc.NewFoldMap[struct{}]()
		ch.namesInProgress = false
		out.update(ch.Name, "NAMES", ch.Members.Names()...)
		return

	case "331":
		if ch, ok := st.Channels.Get(msg.Param(1)); ok {
			ch.Topic = ""
			out.update(ch.Name, "NOTOPIC")
		}
		return

	case "332":
		if ch, ok := st.Channels.Get(msg.Param(1)); ok {
			ch.Topic = msg.Param(2)
			out.update(ch.Name, "HASTOPIC", ch.Topic)
		}
		return

	case "333":
		if ch, ok := st.Channels.Get(msg.Param(1)); ok {
			ch.TopicSetBy = msg.Param(2)
			if secs, err := strconv.ParseInt(msg.Param(3), 10, 64); err == nil {
				ch.TopicSetAt = secs * 1000
			}
			out.update(ch.Name, "TOPICSET", ch.TopicSetBy, msg.Param(3))
		}
		return

	case "TOPIC":
		if ch, ok := st.Channels.Get(msg.Param(0)); ok {
			ch.Topic = msg.Param(1)
			ch.TopicSetBy = msg.Nick()
			ch.TopicSetAt = ev.Timestamp
			out.update(ch.Name, "TOPIC", ch.TopicSetBy, ch.Topic)
		}

	case "PRIVMSG", "NOTICE":
		from, target := msg.Nick(), msg.Param(0)
		party := target
		if !isChannelName(target) {
			party = from
		}
		out.update(party, msg.Command, from, msg.Param(1))

	case "MODE":
		target := msg.Param(0)
		party := ""
		if isChannelName(target) {
			party = target
		}
		out.update(party, "MODE", msg.Nick(), strings.Join(tail(msg.Params, 1), " "))
	}

	if irc.IsNumeric(msg.Command) {
		out.update("", "SERVRPL", msg.Command, strings.Join(tail(msg.Params, 1), " "))
	}
}

func (m *Machine) applySend(st *State, profile *config.NetworkProfile, msg irc.Message, mode Mode, out *Output) {
	switch msg.Command {
	case "NICK":
		if st.Registration < Registered {
			st.Nickname = msg.Param(0)
		}
		if st.Registration == Opened {
			st.setRegistration(NickSent)
			if mode == Realtime && profile != nil {
				out.command(userCommand(st, profile))
			}
		}

	case "USER":
		if st.Registration == NickSent {
			st.setRegistration(UserSent)
		}

	case "PRIVMSG", "NOTICE":
		target, text := msg.Param(0), msg.Param(1)
		if irc.EqualFold(target, nickServ) && isIdentify(text) {
			st.SentNickServ = true
			text = maskedIdentify
		}
		out.update(target, msg.Command+"+OUTGOING", st.Nickname, text)

	case "PONG":
		token := msg.Param(0)
		for i, t := range st.PendingPongs {
			if t == token {
				st.PendingPongs = append(st.PendingPongs[:i:i], st.PendingPongs[i+1:]...)
				break
			}
		}
	}
}

func isIdentify(text string) bool {
	verb, _, _ := strings.Cut(text, " ")
	return strings.EqualFold(verb, "IDENTIFY")
}

func tail(params []string, from int) []string {
	if len(params) <= from {
		return nil
	}
	return params[from:]
}

func userPart(source string) string {
	_, rest, ok := strings.Cut(source, "!")
	if !ok {
		return ""
	}
	user, _, _ := strings.Cut(rest, "@")
	return user
}

func hostPart(source string) string {
	_, host, _ := strings.Cut(source, "@")
	return host
}

func userCommand(st *State, profile *config.NetworkProfile) replication.Command {
	return replication.Send(st.ConnectionID, irc.LineTrailing("USER", profile.Username, "0", "*", profile.Realname))
}

// nextNickOrDisconnect tries the first profile nickname not yet rejected,
// or gives up on the connection.
func nextNickOrDisconnect(st *State, profile *config.NetworkProfile, out *Output) {
	if profile != nil {
		for _, nick := range profile.Nicknames {
			if !st.Rejected[nick] {
				out.command(replication.Send(st.ConnectionID, irc.Line("NICK", nick)))
				return
			}
		}
	}
	out.command(replication.Disconnect(st.ConnectionID))
	st.DisconnectRequested = true
	out.notice(NoticeNicknamesExhausted, st)
}

func identify(st *State, profile *config.NetworkProfile, out *Output) {
	if profile.NickServPassword == "" || st.SentNickServ {
		return
	}
	out.command(replication.Send(st.ConnectionID, irc.LineTrailing("PRIVMSG", nickServ, "IDENTIFY "+profile.NickServPassword)))
}

// joinMissing joins every profile channel the session is not in.
func joinMissing(st *State, profile *config.NetworkProfile, out *Output) {
	for _, entry := range profile.Channels {
		name, key := config.SplitChannel(entry)
		if name == "" || st.Channels.Has(name) {
			continue
		}
		if key != "" {
			out.command(replication.Send(st.ConnectionID, irc.LineTrailing("JOIN", name, key)))
		} else {
			out.command(replication.Send(st.ConnectionID, irc.Line("JOIN", name)))
		}
	}
}
