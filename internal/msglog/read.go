package msglog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// Token encodes the starting position as seq (8 bytes big-endian).
type Token [8]byte

func TokenFromSeq(seq uint64) Token { var t Token; binary.BigEndian.PutUint64(t[:], seq); return t }
func (t Token) Seq() uint64         { return binary.BigEndian.Uint64(t[:]) }

type ReadOptions struct {
	Start   Token // if zero, begin from the first (or, reversed, the last) entry
	Limit   int
	Reverse bool
}

// Entry is one stored message and its position in the window.
type Entry struct {
	Seq uint64
	Message
}

// Read returns up to Limit entries of a window starting at Start
// (inclusive). Reverse scans descending. The returned token is the next
// position to read from, zero when the scan reached the end.
func (l *Log) Read(profile, party string, opts ReadOptions) ([]Entry, Token, error) {
	var next Token
	if _, err := l.Window(profile, party); err != nil {
		return nil, next, err
	}
	startSeq := opts.Start.Seq()
	startKey := KeyEntry(profile, party, startSeq)
	low := KeyEntry(profile, party, 0)
	hi := KeyEntry(profile, party, ^uint64(0))
	seqAt := func(key []byte) uint64 { return binary.BigEndian.Uint64(key[len(key)-8:]) }

	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, next, err
	}
	defer iter.Close()

	entries := make([]Entry, 0, max(1, opts.Limit))
	var ok bool
	switch {
	case opts.Reverse && startSeq == 0:
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(append(startKey, 0x00))
	case startSeq == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(startKey)
	}
	for ; ok && (opts.Limit == 0 || len(entries) < opts.Limit); ok = step(iter, opts.Reverse) {
		if len(iter.Key()) != len(low) {
			continue // a longer party name sharing this prefix
		}
		if m, valid := DecodeMessage(iter.Value()); valid {
			entries = append(entries, Entry{Seq: seqAt(iter.Key()), Message: m})
		}
	}
	if ok && iter.Valid() {
		next = TokenFromSeq(seqAt(iter.Key()))
	}
	return entries, next, iter.Error()
}

func step(iter *pebble.Iterator, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}
