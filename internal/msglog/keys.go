package msglog

import (
	"encoding/binary"

	"github.com/nayuki/MamIRC-sub000/internal/irc"
)

var (
	winPrefix  = []byte("win/")
	metaPrefix = []byte("wmeta/")
	srcPrefix  = []byte("src/")
	partySep   = byte(0)
	entrySeg   = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// windowID is the folded identity of a window, used as the key stem.
func windowID(profile, party string) string {
	return profile + string(partySep) + irc.Fold(party)
}

func keyWindowStem(id string) []byte {
	k := make([]byte, 0, len(winPrefix)+len(id)+16)
	k = append(k, winPrefix...)
	return append(k, id...)
}

func keyMeta(id string) []byte {
	k := make([]byte, 0, len(metaPrefix)+len(id))
	k = append(k, metaPrefix...)
	return append(k, id...)
}

// KeyWindowMeta builds the window metadata key.
func KeyWindowMeta(profile, party string) []byte {
	return keyMeta(windowID(profile, party))
}

// KeyEntry builds the entry key with a big-endian sequence for ordering.
func KeyEntry(profile, party string, seq uint64) []byte {
	k := append(keyWindowStem(windowID(profile, party)), entrySeg...)
	return appendBE8(k, seq)
}

// KeySource builds the marker key of one update of one event.
func KeySource(connID, eventSeq int64, index int) []byte {
	k := make([]byte, 0, len(srcPrefix)+20)
	k = append(k, srcPrefix...)
	k = appendBE8(k, uint64(connID))
	k = appendBE8(k, uint64(eventSeq))
	return appendBE4(k, uint32(index))
}
