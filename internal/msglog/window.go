package msglog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nayuki/MamIRC-sub000/internal/irc"
)

// Window is the metadata of one window.
type Window struct {
	Profile string `json:"profile"`
	// Party keeps the most recent casing seen.
	Party         string `json:"party"`
	CreatedAtMs   int64  `json:"createdAtMs"`
	LastSeq       uint64 `json:"lastSeq"`
	LastTimestamp int64  `json:"lastTimestamp"`
	// ReadUntil is the highest entry sequence the user has seen.
	ReadUntil uint64 `json:"readUntil"`
}

// Unread returns the number of entries after the read marker.
func (w Window) Unread() uint64 {
	if w.ReadUntil >= w.LastSeq {
		return 0
	}
	return w.LastSeq - w.ReadUntil
}

func (l *Log) loadWindows() error {
	return l.db.ScanPrefix(metaPrefix, func(key, value []byte) bool {
		var w Window
		if err := json.Unmarshal(value, &w); err != nil {
			l.loadErr = fmt.Errorf("msglog: window meta %q: %w", key[len(metaPrefix):], err)
			return false
		}
		l.windows[string(key[len(metaPrefix):])] = &w
		return true
	})
}

// Windows lists every window ordered by profile then party.
func (l *Log) Windows() []Window {
	l.mu.Lock()
	out := make([]Window, 0, len(l.windows))
	for _, w := range l.windows {
		out = append(out, *w)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Profile != out[j].Profile {
			return out[i].Profile < out[j].Profile
		}
		return irc.Fold(out[i].Party) < irc.Fold(out[j].Party)
	})
	return out
}

// Window returns the metadata of one window. Party is matched under IRC
// case folding.
func (l *Log) Window(profile, party string) (Window, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[windowID(profile, party)]
	if !ok {
		return Window{}, ErrNotFound
	}
	return *w, nil
}
