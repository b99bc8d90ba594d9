package msglog

import (
	"encoding/binary"
	"hash/crc32"
	"strings"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const headerLen = 8 + 8 + 4 + 8

// Message is one window update with the event it came from.
type Message struct {
	ConnectionID int64
	EventSeq     int64
	// Index orders updates produced by the same event.
	Index     int
	Timestamp int64 // milliseconds
	Kind      string
	Args      []string
}

func encodeHeader(m Message) []byte {
	h := make([]byte, 0, headerLen)
	h = appendBE8(h, uint64(m.ConnectionID))
	h = appendBE8(h, uint64(m.EventSeq))
	h = appendBE4(h, uint32(m.Index))
	return appendBE8(h, uint64(m.Timestamp))
}

func encodePayload(m Message) []byte {
	var b strings.Builder
	b.WriteString(m.Kind)
	for _, a := range m.Args {
		b.WriteByte('\n')
		b.WriteString(a)
	}
	return []byte(b.String())
}

// EncodeMessage renders m as a checksummed record.
func EncodeMessage(m Message) []byte {
	return EncodeRecord(encodeHeader(m), encodePayload(m))
}

// DecodeMessage parses a record written by EncodeMessage.
func DecodeMessage(b []byte) (Message, bool) {
	dec, ok := DecodeRecord(b)
	if !ok || len(dec.Header) != headerLen {
		return Message{}, false
	}
	h := dec.Header
	m := Message{
		ConnectionID: int64(binary.BigEndian.Uint64(h[0:8])),
		EventSeq:     int64(binary.BigEndian.Uint64(h[8:16])),
		Index:        int(binary.BigEndian.Uint32(h[16:20])),
		Timestamp:    int64(binary.BigEndian.Uint64(h[20:28])),
	}
	parts := strings.Split(string(dec.Payload), "\n")
	m.Kind = parts[0]
	if len(parts) > 1 {
		m.Args = parts[1:]
	}
	return m, true
}

func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

type Decoded struct {
	Header  []byte
	Payload []byte
}

func DecodeRecord(b []byte) (Decoded, bool) {
	if len(b) < 1+4 {
		return Decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return Decoded{}, false
	}
	if int(n)+int(hlen)+4 > len(b) {
		return Decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Decoded{}, false
	}
	return Decoded{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}
