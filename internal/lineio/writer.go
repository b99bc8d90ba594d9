package lineio

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var (
	ErrWriterClosed = errors.New("lineio: writer closed")
	ErrQueueFull    = errors.New("lineio: write queue full")
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Newline is appended to every line. Defaults to "\n".
	Newline string
	// MaxQueued bounds the number of queued lines; 0 means unbounded.
	MaxQueued int
	// OnWritten is called from the writer goroutine after each line has been
	// handed to the underlying stream and flushed.
	OnWritten func(line []byte)
}

// Writer writes queued lines from its own goroutine.
type Writer struct {
	dst  io.WriteCloser
	opts WriterOptions

	mu         sync.Mutex
	queue      [][]byte
	terminated bool
	wake       chan struct{}

	done chan struct{}
	err  error
}

// NewWriter starts a Writer draining into dst.
func NewWriter(dst io.WriteCloser, opts WriterOptions) *Writer {
	if opts.Newline == "" {
		opts.Newline = "\n"
	}
	w := &Writer{
		dst:  dst,
		opts: opts,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue appends a copy of line to the queue.
func (w *Writer) Enqueue(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return ErrWriterClosed
	}
	if w.opts.MaxQueued > 0 && len(w.queue) >= w.opts.MaxQueued {
		return ErrQueueFull
	}
	w.queue = append(w.queue, append([]byte(nil), line...))
	w.signal()
	return nil
}

// Close enqueues the terminator. Lines queued earlier are still written
// before the stream is closed. Close is idempotent and does not wait.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return
	}
	w.terminated = true
	w.signal()
}

// Done is closed once the stream has been closed.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Err reports the first write error, if any, after Done.
func (w *Writer) Err() error {
	<-w.done
	return w.err
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) run() {
	defer close(w.done)
	bw := bufio.NewWriter(w.dst)
	failed := false
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		terminated := w.terminated
		w.mu.Unlock()

		for _, line := range batch {
			if failed {
				continue
			}
			if err := w.writeLine(bw, line); err != nil {
				w.err = err
				failed = true
				// unblock whoever reads the other side
				_ = w.dst.Close()
			}
		}
		if terminated {
			// Enqueue refuses lines once terminated, so the batch was the tail.
			if !failed {
				_ = w.dst.Close()
			}
			return
		}
		<-w.wake
	}
}

func (w *Writer) writeLine(bw *bufio.Writer, line []byte) error {
	if _, err := bw.Write(line); err != nil {
		return err
	}
	if _, err := bw.WriteString(w.opts.Newline); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if w.opts.OnWritten != nil {
		w.opts.OnWritten(line)
	}
	return nil
}
