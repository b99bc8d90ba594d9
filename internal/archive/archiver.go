package archive

import (
	"context"
	"sync"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/event"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

// Metrics observes archiver activity. All methods may be called
// concurrently.
type Metrics interface {
	ObserveCommit(events int, elapsed time.Duration)
	SetQueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCommit(int, time.Duration) {}
func (noopMetrics) SetQueueDepth(int)                {}

// ArchiverOptions tunes batching.
type ArchiverOptions struct {
	// GatherWindow bounds how long a batch keeps absorbing a busy queue.
	GatherWindow time.Duration
	MaxBatch     int
	QueueSize    int
	Logger       logpkg.Logger
	Metrics      Metrics
	// OnFatal is called once when a commit fails. The Connector exits.
	OnFatal func(error)
}

type item struct {
	ev    event.Event
	flush chan error
}

// Archiver batches appends into a Store from a single worker goroutine.
type Archiver struct {
	store  Store
	opts   ArchiverOptions
	logger logpkg.Logger

	queue    chan item
	flushSem chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// NewArchiver returns an Archiver; call Run to start committing.
func NewArchiver(store Store, opts ArchiverOptions) *Archiver {
	if opts.GatherWindow <= 0 {
		opts.GatherWindow = 200 * time.Millisecond
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 1024
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Archiver{
		store:    store,
		opts:     opts,
		logger:   opts.Logger.With(logpkg.Component("archiver")),
		queue:    make(chan item, opts.QueueSize),
		flushSem: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Append enqueues ev. It blocks only while the queue is full and fails once
// the worker has stopped.
func (a *Archiver) Append(ev event.Event) error {
	select {
	case <-a.done:
		return a.stoppedErr()
	default:
	}
	select {
	case a.queue <- item{ev: ev}:
		return nil
	case <-a.done:
		return a.stoppedErr()
	}
}

// Flush returns a channel that receives nil once every event appended
// before the call is committed, or the error that stopped the worker.
// Flushes are serialized: a second caller waits for the first to complete.
func (a *Archiver) Flush() <-chan error {
	ch := make(chan error, 1)
	select {
	case a.flushSem <- struct{}{}:
	case <-a.done:
		ch <- a.stoppedErr()
		return ch
	}
	inner := make(chan error, 1)
	select {
	case a.queue <- item{flush: inner}:
	case <-a.done:
		<-a.flushSem
		ch <- a.stoppedErr()
		return ch
	}
	go func() {
		var err error
		select {
		case err = <-inner:
		case <-a.done:
			// the worker may have answered just before stopping
			select {
			case err = <-inner:
			default:
				err = a.stoppedErr()
			}
		}
		<-a.flushSem
		ch <- err
	}()
	return ch
}

// Err returns the fatal commit error, if any.
func (a *Archiver) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done is closed when Run returns.
func (a *Archiver) Done() <-chan struct{} { return a.done }

func (a *Archiver) stoppedErr() error {
	if err := a.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Run commits batches until ctx is cancelled, then commits whatever is
// still queued and returns. A commit failure stops the worker and is
// returned.
func (a *Archiver) Run(ctx context.Context) error {
	defer close(a.done)
	for {
		select {
		case it := <-a.queue:
			if err := a.commitFrom(it); err != nil {
				return err
			}
		case <-ctx.Done():
			return a.drain()
		}
	}
}

// drain commits everything already queued at shutdown.
func (a *Archiver) drain() error {
	for {
		select {
		case it := <-a.queue:
			if err := a.commitFrom(it); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// commitFrom gathers a batch starting with first and commits it.
func (a *Archiver) commitFrom(first item) error {
	var batch []event.Event
	var flushes []chan error
	add := func(it item) bool {
		if it.flush != nil {
			flushes = append(flushes, it.flush)
			return false
		}
		batch = append(batch, it.ev)
		return true
	}

	start := time.Now()
	if add(first) {
	gather:
		for len(batch) < a.opts.MaxBatch && time.Since(start) < a.opts.GatherWindow {
			select {
			case it := <-a.queue:
				if !add(it) {
					// a waiting flush closes the batch early
					break gather
				}
			default:
				break gather
			}
		}
	}
	a.opts.Metrics.SetQueueDepth(len(a.queue))

	if len(batch) > 0 {
		commitStart := time.Now()
		if err := a.store.Append(context.Background(), batch); err != nil {
			a.fail(err, flushes)
			return err
		}
		elapsed := time.Since(commitStart)
		a.opts.Metrics.ObserveCommit(len(batch), elapsed)
		a.logger.Debug("batch committed", logpkg.Int("events", len(batch)), logpkg.Duration("elapsed", elapsed))
	}
	for _, f := range flushes {
		f <- nil
	}
	return nil
}

func (a *Archiver) fail(err error, flushes []chan error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.logger.Error("archive commit failed; log integrity can no longer be guaranteed", logpkg.Err(err))
	for _, f := range flushes {
		f <- err
	}
	if a.opts.OnFatal != nil {
		a.opts.OnFatal(err)
	}
}
