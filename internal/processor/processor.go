package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	"github.com/nayuki/MamIRC-sub000/internal/msglog"
	"github.com/nayuki/MamIRC-sub000/internal/reconnect"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	"github.com/nayuki/MamIRC-sub000/internal/session"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

var (
	ErrStopped       = errors.New("processor: stopped")
	ErrConnectorLost = errors.New("processor: connector connection lost")
	ErrHistoryGap    = errors.New("processor: archive is missing events")
)

// Connector is the attached replication stream. *replication.Client
// implements it.
type Connector interface {
	Snapshot() replication.Snapshot
	Events() <-chan event.Event
	Err() error
	Send(cmd replication.Command) error
}

// History reads archived events. archive.Store implements it.
type History interface {
	ReadConnection(ctx context.Context, connID, before int64) ([]event.Event, error)
	Connections(ctx context.Context) ([]archive.ConnectionSummary, error)
}

// MessageSink stores window updates. *msglog.Log implements it.
type MessageSink interface {
	Append(ctx context.Context, profile string, msgs []msglog.Pending) (int, error)
}

// Watermark remembers how far backfill got. *runtime.Runtime implements it.
type Watermark interface {
	Watermark() (int64, bool, error)
	AdvanceWatermark(id int64) error
}

type Options struct {
	Connector Connector
	History   History
	// Messages and Watermark are optional; without them no window
	// history is kept.
	Messages  MessageSink
	Watermark Watermark
	Profiles  []config.NetworkProfile
	Reconnect config.ReconnectConfig
	// Clock drives reconnect timers; tests substitute a manual one.
	Clock  reconnect.Clock
	Logger logpkg.Logger
}

// Processor drives IRC sessions from the Connector's event stream.
type Processor struct {
	opts     Options
	logger   logpkg.Logger
	sessions *session.Sessions
	profiles session.Profiles
	sched    *reconnect.Scheduler
	// expected is the next live sequence per connection.
	expected map[int64]int64

	inbox   chan func()
	stopped chan struct{}
	ready   chan struct{}
}

func New(opts Options) (*Processor, error) {
	if opts.Connector == nil {
		return nil, errors.New("processor: Options.Connector is required")
	}
	if opts.History == nil {
		return nil, errors.New("processor: Options.History is required")
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	p := &Processor{
		opts:     opts,
		logger:   opts.Logger.With(logpkg.Component("processor")),
		sessions: session.NewSessions(session.NewMachine(opts.Logger)),
		profiles: profileMap(opts.Profiles),
		expected: make(map[int64]int64),
		inbox:    make(chan func(), 64),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}
	p.sched = reconnect.NewScheduler(reconnect.Options{
		InitialDelay: opts.Reconnect.InitialDelay.D(),
		MaxDelay:     opts.Reconnect.MaxDelay.D(),
		Clock:        opts.Clock,
		Post:         func(f func()) { p.post(f) },
		Connect:      p.reconnect,
		Logger:       opts.Logger,
	})
	return p, nil
}

func profileMap(list []config.NetworkProfile) session.Profiles {
	m := make(session.Profiles, len(list))
	for _, prof := range list {
		m[prof.Name] = prof
	}
	return m
}

// Ready is closed once catchup has finished and live events are applied.
func (p *Processor) Ready() <-chan struct{} { return p.ready }

// Run performs startup and then serves until ctx is cancelled (nil) or
// the Connector stream ends (ErrConnectorLost).
func (p *Processor) Run(ctx context.Context) error {
	defer close(p.stopped)
	defer p.sched.CancelAll()

	if err := p.backfill(ctx); err != nil {
		return err
	}
	if err := p.catchup(ctx); err != nil {
		return err
	}
	out, err := p.sessions.FinishCatchup(p.profiles)
	if err != nil {
		return err
	}
	p.dispatch(out)
	p.applyProfiles()
	metrics.SetSessions(p.sessions.Len())
	close(p.ready)
	p.logger.Info("catchup finished, processing live events", logpkg.Int("sessions", p.sessions.Len()))

	events := p.opts.Connector.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-p.inbox:
			fn()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("%w: %v", ErrConnectorLost, p.opts.Connector.Err())
			}
			if err := p.live(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (p *Processor) post(fn func()) bool {
	select {
	case p.inbox <- fn:
		return true
	case <-p.stopped:
		return false
	}
}

// call runs fn on the actor and waits for it.
func (p *Processor) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !p.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backfill turns the history of connections that ended while the
// Processor was down into window messages.
func (p *Processor) backfill(ctx context.Context) error {
	if p.opts.Messages == nil || p.opts.Watermark == nil {
		return nil
	}
	mark, haveMark, err := p.opts.Watermark.Watermark()
	if err != nil {
		return fmt.Errorf("processor: read watermark: %w", err)
	}
	active := make(map[int64]bool)
	for _, ac := range p.opts.Connector.Snapshot() {
		active[ac.ConnectionID] = true
	}
	conns, err := p.opts.History.Connections(ctx)
	if err != nil {
		return fmt.Errorf("processor: list archived connections: %w", err)
	}

	// the watermark only advances over a prefix of finished connections
	advance, blocked := int64(-1), false
	for _, c := range conns {
		if haveMark && c.ConnectionID <= mark {
			continue
		}
		if active[c.ConnectionID] {
			blocked = true
			continue
		}
		if err := p.replayFinished(ctx, c.ConnectionID, c.Last.Sequence+1); err != nil {
			return err
		}
		if !blocked {
			advance = c.ConnectionID
		}
	}
	if advance >= 0 {
		if err := p.opts.Watermark.AdvanceWatermark(advance); err != nil {
			return fmt.Errorf("processor: advance watermark: %w", err)
		}
		p.logger.Info("backfilled window history", logpkg.Int64("watermark", advance))
	}
	return nil
}

// replayFinished replays one ended connection through a throwaway session
// set, keeping only the window updates.
func (p *Processor) replayFinished(ctx context.Context, id, end int64) error {
	evs, err := p.opts.History.ReadConnection(ctx, id, end)
	if err != nil {
		return fmt.Errorf("processor: read connection %d: %w", id, err)
	}
	scratch := session.NewSessions(session.NewMachine(p.opts.Logger))
	for _, ev := range evs {
		out, err := scratch.Apply(ev, p.profiles, session.Replay)
		if err != nil {
			p.logger.Warn("skipping archived event", logpkg.ConnectionID(id), logpkg.Int64("seq", ev.Sequence), logpkg.Err(err))
			continue
		}
		if err := p.record(ctx, ev, out); err != nil {
			return err
		}
	}
	return nil
}

// catchup replays the archived prefix of every active connection.
func (p *Processor) catchup(ctx context.Context) error {
	for _, ac := range p.opts.Connector.Snapshot() {
		evs, err := p.opts.History.ReadConnection(ctx, ac.ConnectionID, ac.NextSequence)
		if err != nil {
			return fmt.Errorf("processor: read connection %d: %w", ac.ConnectionID, err)
		}
		if int64(len(evs)) != ac.NextSequence {
			return fmt.Errorf("%w: connection %d has %d of %d events", ErrHistoryGap, ac.ConnectionID, len(evs), ac.NextSequence)
		}
		for i, ev := range evs {
			if ev.Sequence != int64(i) {
				return fmt.Errorf("%w: connection %d expected sequence %d, found %d", ErrHistoryGap, ac.ConnectionID, i, ev.Sequence)
			}
			out, err := p.sessions.Apply(ev, p.profiles, session.Replay)
			if err != nil {
				p.logger.Warn("skipping archived event", logpkg.ConnectionID(ev.ConnectionID), logpkg.Int64("seq", ev.Sequence), logpkg.Err(err))
				continue
			}
			metrics.CountApplied(session.Replay.String())
			if err := p.record(ctx, ev, out); err != nil {
				return err
			}
		}
		p.expected[ac.ConnectionID] = ac.NextSequence
	}
	return nil
}

// live applies one event from the Connector in realtime.
func (p *Processor) live(ctx context.Context, ev event.Event) error {
	id := ev.ConnectionID
	want, known := p.expected[id]
	switch {
	case !known && ev.Sequence != 0:
		p.logger.Warn("dropping event of unknown connection", logpkg.ConnectionID(id), logpkg.Int64("seq", ev.Sequence))
		return nil
	case known && ev.Sequence < want:
		metrics.CountSequence(true)
		p.logger.Debug("dropping duplicate event", logpkg.ConnectionID(id), logpkg.Int64("seq", ev.Sequence))
		return nil
	case known && ev.Sequence > want:
		metrics.CountSequence(false)
		p.logger.Error("sequence gap in live events", logpkg.ConnectionID(id), logpkg.Int64("want", want), logpkg.Int64("got", ev.Sequence))
	}
	p.expected[id] = ev.Sequence + 1
	if event.IsClosed(ev) {
		delete(p.expected, id)
	}

	out, err := p.sessions.Apply(ev, p.profiles, session.Realtime)
	if err != nil {
		p.logger.Warn("dropping event", logpkg.ConnectionID(id), logpkg.Int64("seq", ev.Sequence), logpkg.Err(err))
		return nil
	}
	metrics.CountApplied(session.Realtime.String())
	if err := p.record(ctx, ev, out); err != nil {
		return err
	}
	p.dispatch(out)
	metrics.SetSessions(p.sessions.Len())
	return nil
}

// record writes the window updates of one event.
func (p *Processor) record(ctx context.Context, ev event.Event, out session.Output) error {
	if p.opts.Messages == nil || len(out.Updates) == 0 {
		return nil
	}
	pending := make([]msglog.Pending, len(out.Updates))
	for i, u := range out.Updates {
		pending[i] = msglog.Pending{
			Party: u.Party,
			Message: msglog.Message{
				ConnectionID: ev.ConnectionID,
				EventSeq:     ev.Sequence,
				Index:        i,
				Timestamp:    ev.Timestamp,
				Kind:         u.Kind,
				Args:         u.Args,
			},
		}
	}
	n, err := p.opts.Messages.Append(ctx, out.Profile, pending)
	if err != nil {
		return fmt.Errorf("processor: write window messages: %w", err)
	}
	metrics.AddWindowLines(n)
	return nil
}

// dispatch sends commands and reacts to notices.
func (p *Processor) dispatch(out session.Output) {
	for _, cmd := range out.Commands {
		p.send(cmd)
	}
	for _, n := range out.Notices {
		fields := []logpkg.Field{logpkg.Profile(n.Profile), logpkg.ConnectionID(n.ConnectionID)}
		switch n.Kind {
		case session.NoticeRegistered:
			p.logger.Info("registered", fields...)
			p.sched.Registered(n.Profile)
		case session.NoticeNicknamesExhausted:
			p.logger.Warn("all nicknames rejected, disconnecting", fields...)
		case session.NoticeClosedExpectedly:
			p.logger.Info("connection closed", fields...)
		case session.NoticeClosedUnexpectedly:
			prof, ok := p.profiles[n.Profile]
			if !ok || !prof.Connect {
				p.logger.Info("connection lost", fields...)
				continue
			}
			delay := p.sched.OnUnexpectedClose(n.Profile, len(prof.Servers))
			p.logger.Info("connection lost, reconnecting", append(fields, logpkg.Duration("delay", delay))...)
		}
	}
}

func (p *Processor) send(cmd replication.Command) {
	if err := p.opts.Connector.Send(cmd); err != nil {
		p.logger.Error("sending command", logpkg.Str("command", cmd.Kind.String()), logpkg.Err(err))
	}
}

// reconnect is the scheduler's connect callback; it runs on the actor.
func (p *Processor) reconnect(profile string, serverIndex int) {
	prof, ok := p.profiles[profile]
	if !ok || !prof.Connect || len(prof.Servers) == 0 {
		return
	}
	srv := prof.Servers[serverIndex%len(prof.Servers)]
	p.send(replication.Connect(srv.Host, srv.Port, srv.TLS, prof.Name))
}

func (p *Processor) applyProfiles() {
	p.sched.CancelAll()
	out, active := p.sessions.ApplyProfiles(p.profiles)
	p.dispatch(out)
	p.logger.Debug("profiles applied", logpkg.Int("active", len(active)), logpkg.Int("commands", len(out.Commands)))
}

// Reload replaces the profile set and reconciles sessions with it.
func (p *Processor) Reload(ctx context.Context, profiles []config.NetworkProfile) error {
	return p.call(ctx, func() {
		p.profiles = profileMap(profiles)
		p.applyProfiles()
		p.logger.Info("profiles reloaded", logpkg.Int("profiles", len(profiles)))
	})
}

// SessionStatus describes one live session.
type SessionStatus struct {
	ConnectionID int64    `json:"connectionId"`
	Profile      string   `json:"profile"`
	Registration string   `json:"registration"`
	Nickname     string   `json:"nickname,omitempty"`
	Channels     []string `json:"channels,omitempty"`
}

// Status is a point-in-time view for the ops endpoint.
type Status struct {
	Sessions         []SessionStatus `json:"sessions"`
	PendingReconnect int             `json:"pendingReconnect"`
	Profiles         int             `json:"profiles"`
}

// Status snapshots the actor state. It fails until catchup is done.
func (p *Processor) Status(ctx context.Context) (any, error) {
	select {
	case <-p.ready:
	default:
		return nil, errors.New("processor: catching up")
	}
	var st Status
	err := p.call(ctx, func() {
		for _, id := range p.sessions.IDs() {
			s, _ := p.sessions.Get(id)
			st.Sessions = append(st.Sessions, SessionStatus{
				ConnectionID: id,
				Profile:      s.Profile,
				Registration: s.Registration.String(),
				Nickname:     s.Nickname,
				Channels:     s.Channels.Names(),
			})
		}
		st.PendingReconnect = p.sched.Len()
		st.Profiles = len(p.profiles)
	})
	return st, err
}

// CheckHealth reports whether the actor is running and caught up.
func (p *Processor) CheckHealth(ctx context.Context) error {
	select {
	case <-p.stopped:
		return ErrStopped
	default:
	}
	select {
	case <-p.ready:
		return nil
	default:
		return errors.New("processor: catching up")
	}
}

// Stopped is closed when Run returns.
func (p *Processor) Stopped() <-chan struct{} { return p.stopped }
