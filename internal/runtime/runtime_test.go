package runtime

import (
	"context"
	"testing"

	"github.com/nayuki/MamIRC-sub000/internal/msglog"
	pebblestore "github.com/nayuki/MamIRC-sub000/internal/storage/pebble"
)

func TestOpenCloseHealth(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestWatermarkSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok, err := rt.Watermark(); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v", ok, err)
	}
	if err := rt.AdvanceWatermark(7); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := rt.AdvanceWatermark(3); err != nil {
		t.Fatalf("advance lower: %v", err)
	}
	if _, err := rt.Messages().Append(context.Background(), "libera", []msglog.Pending{{Party: "#a", Message: msglog.Message{ConnectionID: 7, Kind: "CONNECT"}}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt, err = Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	id, ok, err := rt.Watermark()
	if err != nil || !ok || id != 7 {
		t.Fatalf("want 7, got %d ok=%v err=%v", id, ok, err)
	}
	if got := len(rt.Messages().Windows()); got != 1 {
		t.Fatalf("want 1 window, got %d", got)
	}
}
