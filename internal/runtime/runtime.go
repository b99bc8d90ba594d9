package runtime

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nayuki/MamIRC-sub000/internal/metrics"
	"github.com/nayuki/MamIRC-sub000/internal/msglog"
	pebblestore "github.com/nayuki/MamIRC-sub000/internal/storage/pebble"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

var watermarkKey = []byte("state/watermark")

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	// ReadOnly opens the store for inspection while the Processor is down.
	ReadOnly bool
	Logger   logpkg.Logger
}

// Runtime owns the Processor's Pebble store.
type Runtime struct {
	db       *pebblestore.DB
	messages *msglog.Log
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	po := pebblestore.Options{
		DataDir:  opts.DataDir,
		Fsync:    opts.Fsync,
		Metrics:  metrics.Storage{},
		ReadOnly: opts.ReadOnly,
	}
	if opts.Logger != nil {
		po.Logger = opts.Logger.With(logpkg.Component("pebble"))
	}
	db, err := pebblestore.Open(po)
	if err != nil {
		return nil, fmt.Errorf("runtime: open %s: %w", opts.DataDir, err)
	}
	messages, err := msglog.Open(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runtime: load windows: %w", err)
	}
	return &Runtime{db: db, messages: messages}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Messages returns the window message log.
func (r *Runtime) Messages() *msglog.Log { return r.messages }

// Watermark returns the highest connection id whose events have all been
// applied to the message log. ok is false before the first connection.
func (r *Runtime) Watermark() (id int64, ok bool, err error) {
	b, err := r.db.Get(watermarkKey)
	if pebblestore.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(b) != 8 {
		return 0, false, fmt.Errorf("runtime: watermark has %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), true, nil
}

// AdvanceWatermark raises the watermark to id. Lower values are ignored.
func (r *Runtime) AdvanceWatermark(id int64) error {
	cur, ok, err := r.Watermark()
	if err != nil {
		return err
	}
	if ok && id <= cur {
		return nil
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return r.db.Set(watermarkKey, b[:])
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }
