package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := ArchiveCommits
	Init()
	if ArchiveCommits != first {
		t.Fatalf("Init re-registered collectors")
	}
}

func TestArchiveAdapter(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ArchiveCommits)
	Archive{}.ObserveCommit(12, 3*time.Millisecond)
	if got := testutil.ToFloat64(ArchiveCommits); got != before+1 {
		t.Fatalf("commits = %v, want %v", got, before+1)
	}
	Archive{}.SetQueueDepth(7)
	if got := testutil.ToFloat64(ArchiveQueueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
}

func TestStorageAdapter(t *testing.T) {
	Init()
	before := testutil.ToFloat64(StorageBytes.WithLabelValues("write"))
	Storage{}.ObserveWrite(time.Millisecond, 100)
	if got := testutil.ToFloat64(StorageBytes.WithLabelValues("write")); got != before+100 {
		t.Fatalf("write bytes = %v, want %v", got, before+100)
	}
}

func TestCounters(t *testing.T) {
	CountEvent("RECEIVE")
	CountCommand("send")
	CountApplied("replay")
	if got := testutil.ToFloat64(EventsTotal.WithLabelValues("RECEIVE")); got < 1 {
		t.Fatalf("events counter = %v", got)
	}
	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("send")); got < 1 {
		t.Fatalf("commands counter = %v", got)
	}
	if got := testutil.ToFloat64(EventsApplied.WithLabelValues("replay")); got < 1 {
		t.Fatalf("applied counter = %v", got)
	}
}
