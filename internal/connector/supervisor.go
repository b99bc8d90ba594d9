package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/lineio"
	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

var (
	ErrStopped     = errors.New("connector: supervisor stopped")
	ErrTerminating = errors.New("connector: terminating")
)

// EventSink receives every produced event. archive.Archiver implements it.
type EventSink interface {
	Append(ev event.Event) error
	Flush() <-chan error
}

// Options configures a Supervisor.
type Options struct {
	Sink EventSink
	// NextConnectionID seeds id allocation, normally from archive recovery.
	NextConnectionID   int64
	ConnectTimeout     time.Duration
	MaxLineLength      int
	InsecureSkipVerify bool
	// SubscriberQueue bounds lines buffered for the attached Processor.
	SubscriberQueue int
	// TerminateGrace bounds how long Terminate waits for sockets to close.
	TerminateGrace time.Duration
	Logger         logpkg.Logger
	Now            func() time.Time
	Dial           func(ctx context.Context, network, addr string) (net.Conn, error)
}

type connRecord struct {
	id            int64
	nextSeq       int64
	profile       string
	host          string
	conn          net.Conn
	writer        *lineio.Writer
	cancel        context.CancelFunc
	disconnecting bool
}

type subscriber struct {
	id     string
	conn   net.Conn
	writer *lineio.Writer
}

// Supervisor owns the connection registry and the subscriber attachment.
type Supervisor struct {
	opts   Options
	logger logpkg.Logger

	inbox   chan func()
	stopped chan struct{}

	// owned by the run goroutine
	nextID      int64
	conns       map[int64]*connRecord
	sub         *subscriber
	terminating bool
	finished    chan struct{}
}

// NewSupervisor returns a Supervisor; call Run to start it.
func NewSupervisor(opts Options) *Supervisor {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = lineio.DefaultMaxLineLength
	}
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dial == nil {
		d := &net.Dialer{}
		opts.Dial = d.DialContext
	}
	metrics.Init()
	return &Supervisor{
		opts:     opts,
		logger:   opts.Logger.With(logpkg.Component("supervisor")),
		inbox:    make(chan func(), 256),
		stopped:  make(chan struct{}),
		nextID:   opts.NextConnectionID,
		conns:    make(map[int64]*connRecord),
		finished: make(chan struct{}),
	}
}

// Run processes requests until Terminate completes or ctx is cancelled.
// Cancellation starts the same shutdown as Terminate.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.stopped)
	ctxDone := ctx.Done()
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-ctxDone:
			ctxDone = nil
			s.beginTerminate("context cancelled")
		case <-s.finished:
			return nil
		}
	}
}

// Done is closed when Run has returned.
func (s *Supervisor) Done() <-chan struct{} { return s.stopped }

func (s *Supervisor) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

// call runs fn on the actor and waits for it.
func (s *Supervisor) call(fn func()) error {
	done := make(chan struct{})
	if !s.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		// fn may have completed just before the actor stopped
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Connect allocates a connection id, logs the connect event and starts
// dialing.
func (s *Supervisor) Connect(host string, port int, useTLS bool, profile string) (int64, error) {
	var id int64
	var err error
	if cerr := s.call(func() { id, err = s.connect(host, port, useTLS, profile) }); cerr != nil {
		return 0, cerr
	}
	return id, err
}

// Disconnect logs a disconnect event and closes the connection once its
// write queue has drained. Unknown ids are ignored.
func (s *Supervisor) Disconnect(id int64) error {
	return s.call(func() { s.disconnect(id) })
}

// Send queues line for connection id. The Send event is logged once the
// line has been written.
func (s *Supervisor) Send(id int64, line []byte) error {
	var err error
	if cerr := s.call(func() { err = s.send(id, line) }); cerr != nil {
		return cerr
	}
	return err
}

// Terminate closes every connection, flushes the archive and stops Run.
func (s *Supervisor) Terminate() {
	s.post(func() { s.beginTerminate("terminate requested") })
}

func (s *Supervisor) now() int64 { return s.opts.Now().UnixMilli() }

// emit assigns the next sequence number and tees the event to the sink
// and the subscriber.
func (s *Supervisor) emit(rec *connRecord, typ event.Type, line []byte) {
	ev := event.Event{
		ConnectionID: rec.id,
		Sequence:     rec.nextSeq,
		Timestamp:    s.now(),
		Type:         typ,
		Line:         append([]byte(nil), line...),
	}
	rec.nextSeq++
	if err := s.opts.Sink.Append(ev); err != nil {
		// the archiver's fatal hook shuts the process down
		s.logger.Error("archive append failed", logpkg.ConnectionID(rec.id), logpkg.Err(err))
	}
	metrics.CountEvent(typ.String())
	if s.sub != nil {
		if err := s.sub.writer.Enqueue(event.Format(ev)); err != nil {
			if errors.Is(err, lineio.ErrQueueFull) {
				metrics.SubscriberDrops.Inc()
				s.logger.Warn("subscriber queue overflow, detaching", logpkg.Str("subscriber", s.sub.id))
			}
			s.dropSubscriber()
		}
	}
}

func (s *Supervisor) connect(host string, port int, useTLS bool, profile string) (int64, error) {
	if s.terminating {
		return 0, ErrTerminating
	}
	ctx, cancel := context.WithCancel(context.Background())
	rec := &connRecord{id: s.nextID, profile: profile, host: host, cancel: cancel}
	s.nextID++
	s.conns[rec.id] = rec
	s.emit(rec, event.Connection, event.ConnectLine(profile))
	s.logger.Info("connecting",
		logpkg.ConnectionID(rec.id), logpkg.Profile(profile),
		logpkg.Str("host", host), logpkg.Int("port", port), logpkg.Bool("tls", useTLS))
	go s.runConnection(ctx, rec.id, host, port, useTLS)
	return rec.id, nil
}

func (s *Supervisor) disconnect(id int64) {
	rec := s.conns[id]
	if rec == nil {
		s.logger.Debug("disconnect for unknown connection", logpkg.ConnectionID(id))
		return
	}
	s.closeRecord(rec)
}

// closeRecord logs the disconnect once and starts closing the socket.
func (s *Supervisor) closeRecord(rec *connRecord) {
	if rec.disconnecting {
		return
	}
	rec.disconnecting = true
	s.emit(rec, event.Connection, event.DisconnectLine)
	if rec.writer != nil {
		rec.writer.Close()
		// a peer that stops reading must not hold the socket open
		cancel := rec.cancel
		time.AfterFunc(s.opts.TerminateGrace/2, cancel)
		return
	}
	rec.cancel()
}

func (s *Supervisor) send(id int64, line []byte) error {
	if !event.CleanLine(line) {
		return event.ErrUncleanLine
	}
	rec := s.conns[id]
	if rec == nil || rec.writer == nil {
		s.logger.Warn("dropping send for connection that is not open", logpkg.ConnectionID(id))
		return nil
	}
	if err := rec.writer.Enqueue(line); err != nil {
		s.logger.Warn("dropping send", logpkg.ConnectionID(id), logpkg.Err(err))
	}
	return nil
}

// opened registers the live socket. It reports false when the connection
// was disconnected while dialing, in which case the caller closes conn.
func (s *Supervisor) opened(id int64, conn net.Conn, addr string) bool {
	rec := s.conns[id]
	if rec == nil || rec.disconnecting {
		return false
	}
	rec.conn = conn
	s.emit(rec, event.Connection, event.OpenedLine(addr))
	rec.writer = lineio.NewWriter(conn, lineio.WriterOptions{
		Newline: "\r\n",
		OnWritten: func(line []byte) {
			s.post(func() { s.written(id, line) })
		},
	})
	metrics.IRCConnections.Inc()
	s.logger.Info("connection opened", logpkg.ConnectionID(id), logpkg.Str("addr", addr))
	return true
}

func (s *Supervisor) received(id int64, line []byte) {
	if rec := s.conns[id]; rec != nil {
		s.emit(rec, event.Receive, line)
	}
}

func (s *Supervisor) written(id int64, line []byte) {
	if rec := s.conns[id]; rec != nil {
		s.emit(rec, event.Send, line)
	}
}

func (s *Supervisor) closed(id int64, cause error) {
	rec := s.conns[id]
	if rec == nil {
		return
	}
	s.emit(rec, event.Connection, event.ClosedLine)
	delete(s.conns, id)
	if rec.writer != nil {
		rec.writer.Close()
		metrics.IRCConnections.Dec()
	}
	rec.cancel()
	fields := []logpkg.Field{logpkg.ConnectionID(id), logpkg.Profile(rec.profile)}
	if cause != nil {
		fields = append(fields, logpkg.Err(cause))
	}
	s.logger.Info("connection closed", fields...)
	if s.terminating && len(s.conns) == 0 {
		s.finishTerminate()
	}
}

// attach replaces the subscriber. The archive is flushed first so that
// everything before the snapshot can be read back from it.
func (s *Supervisor) attach(id string, conn net.Conn) (*subscriber, error) {
	if s.terminating {
		return nil, ErrTerminating
	}
	if s.sub != nil {
		s.logger.Info("replacing attached processor", logpkg.Str("old", s.sub.id), logpkg.Str("new", id))
		s.dropSubscriber()
	}
	if err := <-s.opts.Sink.Flush(); err != nil {
		return nil, fmt.Errorf("connector: flush before attach: %w", err)
	}
	snap := make(replication.Snapshot, 0, len(s.conns))
	for _, rec := range s.conns {
		snap = append(snap, replication.ActiveConnection{ConnectionID: rec.id, NextSequence: rec.nextSeq})
	}
	snap.Sort()
	sub := &subscriber{
		id:     id,
		conn:   conn,
		writer: lineio.NewWriter(conn, lineio.WriterOptions{Newline: "\r\n", MaxQueued: s.opts.SubscriberQueue}),
	}
	for _, line := range snap.Lines() {
		if err := sub.writer.Enqueue(line); err != nil {
			sub.writer.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("connector: send snapshot: %w", err)
		}
	}
	s.sub = sub
	metrics.SubscriberAttaches.Inc()
	s.logger.Info("processor attached", logpkg.Str("subscriber", id), logpkg.Int("active_connections", len(snap)))
	return sub, nil
}

// dropSubscriber ends the current subscriber's write channel and closes
// its socket. Lines still queued for it are discarded.
func (s *Supervisor) dropSubscriber() {
	if s.sub == nil {
		return
	}
	s.sub.writer.Close()
	_ = s.sub.conn.Close()
	s.sub = nil
}

func (s *Supervisor) detach(sub *subscriber) {
	if s.sub != sub {
		return
	}
	s.logger.Info("processor detached", logpkg.Str("subscriber", sub.id))
	// let the writer drain; the reader side is already gone
	s.sub.writer.Close()
	s.sub = nil
}

// command executes an upstream command from sub. Commands from a
// subscriber that has since been replaced are ignored.
func (s *Supervisor) command(sub *subscriber, cmd replication.Command) {
	if s.sub != sub {
		s.logger.Debug("ignoring command from stale subscriber", logpkg.Str("subscriber", sub.id))
		return
	}
	metrics.CountCommand(cmd.Kind.String())
	switch cmd.Kind {
	case replication.KindConnect:
		if _, err := s.connect(cmd.Host, cmd.Port, cmd.TLS, cmd.Profile); err != nil {
			s.logger.Warn("connect refused", logpkg.Err(err))
		}
	case replication.KindDisconnect:
		s.disconnect(cmd.ConnectionID)
	case replication.KindSend:
		if err := s.send(cmd.ConnectionID, cmd.Line); err != nil {
			s.logger.Warn("send refused", logpkg.ConnectionID(cmd.ConnectionID), logpkg.Err(err))
		}
	case replication.KindTerminate:
		s.beginTerminate("processor requested terminate")
	}
}

func (s *Supervisor) beginTerminate(reason string) {
	if s.terminating {
		return
	}
	s.terminating = true
	s.logger.Info("terminating", logpkg.Str("reason", reason), logpkg.Int("connections", len(s.conns)))
	if len(s.conns) == 0 {
		s.finishTerminate()
		return
	}
	for _, rec := range s.conns {
		s.closeRecord(rec)
	}
	time.AfterFunc(s.opts.TerminateGrace, func() {
		s.post(func() {
			for _, rec := range s.conns {
				if rec.conn != nil {
					_ = rec.conn.Close()
				}
				rec.cancel()
			}
		})
	})
}

func (s *Supervisor) finishTerminate() {
	select {
	case <-s.finished:
		return
	default:
	}
	s.dropSubscriber()
	if err := <-s.opts.Sink.Flush(); err != nil {
		s.logger.Error("final archive flush failed", logpkg.Err(err))
	}
	close(s.finished)
}

// ConnectionStatus describes one live connection.
type ConnectionStatus struct {
	ID           int64  `json:"id"`
	Profile      string `json:"profile"`
	Host         string `json:"host"`
	NextSequence int64  `json:"nextSequence"`
	Open         bool   `json:"open"`
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	NextConnectionID int64              `json:"nextConnectionId"`
	Connections      []ConnectionStatus `json:"connections"`
	Subscriber       string             `json:"subscriber,omitempty"`
	Terminating      bool               `json:"terminating"`
}

// Status snapshots the registry.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.call(func() {
		st.NextConnectionID = s.nextID
		st.Terminating = s.terminating
		if s.sub != nil {
			st.Subscriber = s.sub.id
		}
		for _, rec := range s.conns {
			st.Connections = append(st.Connections, ConnectionStatus{
				ID: rec.id, Profile: rec.profile, Host: rec.host,
				NextSequence: rec.nextSeq, Open: rec.writer != nil,
			})
		}
	})
	sort.Slice(st.Connections, func(i, j int) bool { return st.Connections[i].ID < st.Connections[j].ID })
	if err == nil {
		err = ctx.Err()
	}
	return st, err
}
