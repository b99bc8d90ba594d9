// Package msglog stores the Processor's per-window message history.
//
// # Overview
//
// A window is the conversation with one party on one network profile: a
// channel, a nickname, or the server itself (empty party). Every window
// update produced by the session state machine becomes one entry in the
// window's log, persisted in Pebble. Keys are lexicographically ordered for
// range scans:
//   - wmeta/{profile}\x00{folded party}           (window metadata, JSON)
//   - win/{profile}\x00{folded party}/e/{seq_be8} (entries)
//   - src/{conn_be8}{seq_be8}{idx_be4}            (source marker)
//
// Entries are stored as: varint headerLen | header | payload | crc32c.
// The header carries the source event (connection id, event sequence,
// update index, timestamp); the payload is the update kind followed by its
// arguments, newline separated.
//
// The source marker makes appends idempotent: an update derived from the
// same (connection id, sequence, index) is written at most once, so
// replaying history after a restart never duplicates messages.
//
// API surface
//
//	l, _ := Open(db)
//	n, _ := l.Append(ctx, "libera", []Pending{{Party: "#go", Message: m}})
//	entries, next, _ := l.Read("libera", "#go", ReadOptions{Limit: 100})
//	_ = l.MarkRead("libera", "#go", entries[len(entries)-1].Seq)
//	woke := l.WaitForAppend(200 * time.Millisecond)
package msglog
