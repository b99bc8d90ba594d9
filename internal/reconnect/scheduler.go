package reconnect

import (
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

const (
	DefaultInitialDelay = 1000 * time.Millisecond
	DefaultMaxDelay     = 200000 * time.Millisecond
)

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// Clock arms timers. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// ConnectFunc asks for profile to be connected to the server at index.
type ConnectFunc func(profile string, serverIndex int)

type Options struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Clock        Clock
	// Post runs f on the owning goroutine. Timer callbacks use it.
	Post    func(f func())
	Connect ConnectFunc
	Logger  logpkg.Logger
}

// Attempt is the reconnection state of one profile.
type Attempt struct {
	Count       int
	ServerIndex int
	// Delay is how long the next failure waits.
	Delay time.Duration
	// Armed reports whether a timer is pending.
	Armed bool
}

type attempt struct {
	Attempt
	target int
	timer  Timer
	token  uint64
}

// Scheduler tracks per-profile attempts. It is not safe for concurrent use.
type Scheduler struct {
	opts     Options
	attempts map[string]*attempt
	tokens   uint64
	logger   logpkg.Logger
}

func NewScheduler(opts Options) *Scheduler {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Post == nil {
		opts.Post = func(f func()) { f() }
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Scheduler{
		opts:     opts,
		attempts: make(map[string]*attempt),
		logger:   opts.Logger.With(logpkg.Component("reconnect")),
	}
}

// OnUnexpectedClose reacts to a connection of profile closing on its own.
// serverCount is the number of servers the profile lists; zero does nothing.
// It returns the delay before the next connect, zero when it was immediate.
func (s *Scheduler) OnUnexpectedClose(profile string, serverCount int) time.Duration {
	if serverCount <= 0 {
		return 0
	}
	a, ok := s.attempts[profile]
	if !ok {
		s.attempts[profile] = &attempt{Attempt: Attempt{Delay: s.opts.InitialDelay}}
		s.logger.Info("reconnecting", logpkg.Profile(profile), logpkg.Int("server", 0))
		s.connect(profile, 0)
		return 0
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	delay := a.Delay
	a.Count++
	a.ServerIndex++
	a.Delay *= 2
	if a.Delay > s.opts.MaxDelay {
		a.Delay = s.opts.MaxDelay
	}
	a.target = a.ServerIndex % serverCount
	s.tokens++
	token := s.tokens
	a.token = token
	a.Armed = true
	a.timer = s.opts.Clock.AfterFunc(delay, func() {
		s.opts.Post(func() { s.fire(profile, token) })
	})
	s.logger.Info("reconnect scheduled", logpkg.Profile(profile), logpkg.Duration("delay", delay), logpkg.Int("attempt", a.Count))
	return delay
}

func (s *Scheduler) fire(profile string, token uint64) {
	a, ok := s.attempts[profile]
	if !ok || a.token != token || !a.Armed {
		return
	}
	a.timer = nil
	a.Armed = false
	s.logger.Info("reconnecting", logpkg.Profile(profile), logpkg.Int("server", a.target))
	s.connect(profile, a.target)
}

func (s *Scheduler) connect(profile string, server int) {
	metrics.CountReconnect()
	if s.opts.Connect != nil {
		s.opts.Connect(profile, server)
	}
}

// Registered forgets the attempt of profile after a successful login.
func (s *Scheduler) Registered(profile string) { s.Cancel(profile) }

// Cancel stops the pending timer of profile and forgets its attempt.
func (s *Scheduler) Cancel(profile string) {
	a, ok := s.attempts[profile]
	if !ok {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	delete(s.attempts, profile)
}

// CancelAll stops every timer and forgets all attempts.
func (s *Scheduler) CancelAll() {
	for profile := range s.attempts {
		s.Cancel(profile)
	}
}

// Pending returns the attempt state of profile.
func (s *Scheduler) Pending(profile string) (Attempt, bool) {
	a, ok := s.attempts[profile]
	if !ok {
		return Attempt{}, false
	}
	return a.Attempt, true
}

// Len returns the number of profiles with an attempt.
func (s *Scheduler) Len() int { return len(s.attempts) }
