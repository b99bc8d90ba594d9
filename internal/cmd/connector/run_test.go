package connectorrun

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nayuki/MamIRC-sub000/internal/archive"
	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

func testConfig(t *testing.T) config.ConnectorConfig {
	t.Helper()
	cfg := config.DefaultConnector()
	cfg.Listen.Password = "hunter2"
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive.db")
	return cfg
}

func TestLoadConfigErrors(t *testing.T) {
	valid := testConfig(t)
	noPassword := valid
	noPassword.Listen.Password = ""

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "nothing given", opts: Options{}, wantErr: "no configuration"},
		{name: "missing file", opts: Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")}, wantErr: "config:"},
		{name: "invalid config", opts: Options{Config: &noPassword}, wantErr: "listen.password"},
		{name: "valid config", opts: Options{Config: &valid}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.opts)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.yaml")
	body := "listen:\n  address: 127.0.0.1:7000\n  password: pw\narchive:\n  driver: sqlite\n  path: " + filepath.Join(dir, "a.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Listen.Address != "127.0.0.1:7000" || cfg.Listen.Password != "pw" {
		t.Fatalf("unexpected listen config: %+v", cfg.Listen)
	}
}

func TestRunStopsOnTerminate(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: &cfg, Listener: ln, Logger: logpkg.NewNopLogger()})
	}()

	var client *replication.Client
	deadline := time.Now().Add(5 * time.Second)
	for {
		client, err = replication.Dial(ctx, replication.ClientOptions{
			Address:  ln.Addr().String(),
			Password: "hunter2",
		})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer client.Close()
	if n := len(client.Snapshot()); n != 0 {
		t.Fatalf("fresh archive should have no active connections, got %d", n)
	}
	if err := client.Send(replication.Terminate()); err != nil {
		t.Fatalf("send terminate: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-ctx.Done():
		t.Fatal("connector did not stop after terminate")
	}

	store, err := archive.Open(context.Background(), archive.Options{Driver: "sqlite", Path: cfg.Archive.Path, ReadOnly: true})
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}
	defer store.Close()
	conns, err := store.Connections(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 0 {
		t.Fatalf("expected empty archive, got %d connections", len(conns))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: &cfg, Listener: ln, Logger: logpkg.NewNopLogger()})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("connector did not stop after cancel")
	}
}
