package msglog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	pebblestore "github.com/nayuki/MamIRC-sub000/internal/storage/pebble"
)

var ErrNotFound = errors.New("msglog: window not found")

// Pending is a message addressed to a window of the appending profile.
type Pending struct {
	Party   string
	Message Message
}

// Log holds all windows of one Processor.
type Log struct {
	db *pebblestore.DB

	mu       sync.Mutex
	windows  map[string]*Window
	notifyCh chan struct{}
	loadErr  error
}

// Open loads window metadata from db.
func Open(db *pebblestore.DB) (*Log, error) {
	l := &Log{db: db, windows: make(map[string]*Window), notifyCh: make(chan struct{})}
	if err := l.loadWindows(); err != nil {
		return nil, err
	}
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return l, nil
}

// Append writes msgs to the windows of profile as one atomic batch.
// Messages whose source (connection id, event sequence, index) was already
// written are skipped. It returns how many messages were appended.
func (l *Log) Append(ctx context.Context, profile string, msgs []Pending) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seen := make(map[string]bool, len(msgs))
	touched := make(map[string]*Window)
	appended := 0
	for _, p := range msgs {
		m := p.Message
		src := KeySource(m.ConnectionID, m.EventSeq, m.Index)
		if seen[string(src)] {
			continue
		}
		seen[string(src)] = true
		if _, err := l.db.Get(src); err == nil {
			continue
		} else if !pebblestore.IsNotFound(err) {
			return 0, err
		}

		id := windowID(profile, p.Party)
		w := touched[id]
		if w == nil {
			if cur, ok := l.windows[id]; ok {
				c := *cur
				w = &c
			} else {
				w = &Window{Profile: profile, CreatedAtMs: m.Timestamp}
			}
			touched[id] = w
		}
		w.LastSeq++
		w.Party = p.Party
		w.LastTimestamp = m.Timestamp

		entryKey := KeyEntry(profile, p.Party, w.LastSeq)
		if err := b.Set(entryKey, EncodeMessage(m), nil); err != nil {
			return 0, err
		}
		if err := b.Set(src, entryKey, nil); err != nil {
			return 0, err
		}
		appended++
	}
	if appended == 0 {
		return 0, nil
	}

	for id, w := range touched {
		meta, err := json.Marshal(w)
		if err != nil {
			return 0, err
		}
		if err := b.Set(keyMeta(id), meta, nil); err != nil {
			return 0, err
		}
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	for id, w := range touched {
		l.windows[id] = w
	}
	// notify waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return appended, nil
}
