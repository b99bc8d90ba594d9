package msglog

import (
	"context"
	"errors"
	"testing"
)

func seedWindow(t *testing.T, n int) *Log {
	t.Helper()
	l := newTestLog(t)
	recs := make([]Pending, n)
	for i := 0; i < n; i++ {
		recs[i] = Pending{Party: "#chan", Message: msg(2, int64(i), 0, "PRIVMSG", "alice", string(rune('a'+i)))}
	}
	if _, err := l.Append(context.Background(), "libera", recs); err != nil {
		t.Fatalf("append: %v", err)
	}
	return l
}

func TestReadForward(t *testing.T) {
	l := seedWindow(t, 5)
	items, next, err := l.Read("libera", "#chan", ReadOptions{Limit: 3})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 || items[0].Seq != 1 || items[2].Seq != 3 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[1].Kind != "PRIVMSG" || items[1].Args[1] != "b" || items[1].EventSeq != 1 {
		t.Fatalf("unexpected message: %+v", items[1].Message)
	}
	if next.Seq() != 4 {
		t.Fatalf("want next 4, got %d", next.Seq())
	}
	rest, next, err := l.Read("libera", "#CHAN", ReadOptions{Start: next})
	if err != nil {
		t.Fatalf("read rest: %v", err)
	}
	if len(rest) != 2 || rest[1].Seq != 5 {
		t.Fatalf("unexpected rest: %+v", rest)
	}
	if next.Seq() != 0 {
		t.Fatalf("want end token, got %d", next.Seq())
	}
}

func TestReadReverse(t *testing.T) {
	l := seedWindow(t, 5)
	items, next, err := l.Read("libera", "#chan", ReadOptions{Limit: 2, Reverse: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || items[0].Seq != 5 || items[1].Seq != 4 {
		t.Fatalf("unexpected items: %+v", items)
	}
	items, _, err = l.Read("libera", "#chan", ReadOptions{Start: next, Reverse: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 || items[0].Seq != 3 || items[2].Seq != 1 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestReadUnknownWindow(t *testing.T) {
	l := seedWindow(t, 1)
	if _, _, err := l.Read("libera", "#other", ReadOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMarkReadNeverRegresses(t *testing.T) {
	l := seedWindow(t, 4)
	if err := l.MarkRead("libera", "#chan", 3); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := l.MarkRead("libera", "#chan", 1); err != nil {
		t.Fatalf("mark lower: %v", err)
	}
	w, _ := l.Window("libera", "#chan")
	if w.ReadUntil != 3 {
		t.Fatalf("want 3, got %d", w.ReadUntil)
	}
	if err := l.MarkRead("libera", "#chan", 99); err != nil {
		t.Fatalf("mark past end: %v", err)
	}
	w, _ = l.Window("libera", "#chan")
	if w.ReadUntil != 4 || w.Unread() != 0 {
		t.Fatalf("want clamp to 4, got %+v", w)
	}
	if err := l.MarkRead("libera", "#nope", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
