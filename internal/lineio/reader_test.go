package lineio

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, in string, max int) []string {
	t.Helper()
	r := NewReader(strings.NewReader(in), max)
	var out []string
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		out = append(out, string(line))
	}
	// EOF is sticky
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected sticky EOF, got %v", err)
	}
	return out
}

func TestUniversalNewlines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: []string{""}},
		{in: "b\n", want: []string{"b", ""}},
		{in: "ba\n\r", want: []string{"ba", "", ""}},
		{in: "a\r\nb", want: []string{"a", "b"}},
		{
			in:   "the\rquick\nbrown\r\nfox\n\njumps\r\n\nover\r\rthelazydog",
			want: []string{"the", "quick", "brown", "fox", "", "jumps", "", "over", "", "thelazydog"},
		},
	}
	for _, tt := range tests {
		got := readAll(t, tt.in, 0)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Fatalf("%q: got %q want %q", tt.in, got, tt.want)
		}
	}
}

func TestOverlongLinesDropped(t *testing.T) {
	got := readAll(t, "abcde\nabcdef\r\nxy\nzzzzzzzz", 5)
	want := []string{"abcde", "xy"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("reset by peer") }

func TestReadErrorPropagates(t *testing.T) {
	r := NewReader(failingReader{}, 10)
	if _, err := r.ReadLine(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected read error, got %v", err)
	}
}
