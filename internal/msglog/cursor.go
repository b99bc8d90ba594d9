package msglog

import (
	"encoding/json"
)

// MarkRead moves the read marker of a window to seq. The marker never
// moves backwards and never passes the last entry.
func (l *Log) MarkRead(profile, party string, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := windowID(profile, party)
	cur, ok := l.windows[id]
	if !ok {
		return ErrNotFound
	}
	if seq > cur.LastSeq {
		seq = cur.LastSeq
	}
	if seq <= cur.ReadUntil {
		return nil
	}
	w := *cur
	w.ReadUntil = seq
	meta, err := json.Marshal(&w)
	if err != nil {
		return err
	}
	if err := l.db.Set(keyMeta(id), meta); err != nil {
		return err
	}
	l.windows[id] = &w
	return nil
}
