package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, f Formatter) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(f), WithOutput(NewWriterOutput(&buf)))
	return l, &buf
}

func TestTextFormatterFields(t *testing.T) {
	l, buf := newBufferLogger(t, &TextFormatter{})
	l.With(Component("archiver")).Info("batch committed", Int("events", 3), Str("note", "two words"))
	out := buf.String()
	for _, want := range []string{"INFO", "batch committed", "component=archiver", "events=3", `note="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestJSONFormatterError(t *testing.T) {
	l, buf := newBufferLogger(t, &JSONFormatter{})
	l.Error("commit failed", Err(errors.New("disk full")))
	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if obj["error"] != "disk full" || obj["level"] != "ERROR" {
		t.Fatalf("unexpected entry: %v", obj)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, &TextFormatter{})
	l.SetLevel(WarnLevel)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if l.GetLevel() != WarnLevel {
		t.Fatalf("level: %v", l.GetLevel())
	}
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	l := NewLogger(WithOutput(NewWriterOutput(&buf)), WithExitFunc(func(c int) { code = c }))
	l.Fatal("archive write failed")
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(buf.String(), "FATAL") {
		t.Fatalf("fatal level not recorded: %q", buf.String())
	}
}

func TestApplyConfigRedacts(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "debug", Format: "text", Outputs: []OutputConfig{{Type: "null"}}, Redact: []string{"nickserv_password"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var buf bytes.Buffer
	bl := l.(*BaseLogger)
	bl.outputs = []Output{NewWriterOutput(&buf)}
	l.Info("identify", Str("nickserv_password", "hunter2"))
	if strings.Contains(buf.String(), "hunter2") || !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("secret not redacted: %q", buf.String())
	}
}

func TestApplyConfigRejectsUnknown(t *testing.T) {
	if _, err := ApplyConfig(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestToStdLogger(t *testing.T) {
	l, buf := newBufferLogger(t, &TextFormatter{})
	std := ToStdLogger(l, WarnLevel)
	std.Printf("pebble: %d tables", 4)
	if !strings.Contains(buf.String(), "WARN") || !strings.Contains(buf.String(), "pebble: 4 tables") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestApplyConfigOrDefault(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		level   string
		format  string
		want    Level
		wantErr bool
	}{
		{name: "overrides applied", cfg: Config{Level: "info"}, level: "debug", format: "json", want: DebugLevel},
		{name: "bad format keeps level", cfg: Config{Level: "warn", Format: "xml"}, want: WarnLevel, wantErr: true},
		{name: "bad level falls back to info", cfg: Config{Level: "loud"}, want: InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			l, err := ApplyConfigOrDefault(&cfg, tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if l == nil || l.GetLevel() != tt.want {
				t.Fatalf("level = %v, want %v", l.GetLevel(), tt.want)
			}
		})
	}
}
