package irc

import (
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// Message is a tokenized IRC line.
type Message struct {
	Source  string
	Command string
	Params  []string
}

// Parse tokenizes a raw line of the form ":prefix CMD p1 p2 :trailing".
// The command is upper-cased.
func Parse(line []byte) (Message, error) {
	m, err := ircmsg.ParseLine(string(line))
	if err != nil {
		return Message{}, fmt.Errorf("irc: parse %q: %w", truncate(line, 64), err)
	}
	if m.Command == "" {
		return Message{}, fmt.Errorf("irc: parse %q: missing command", truncate(line, 64))
	}
	return Message{Source: m.Source, Command: strings.ToUpper(m.Command), Params: m.Params}, nil
}

// Nick returns the nickname part of the source prefix.
func (m Message) Nick() string {
	src := m.Source
	if i := strings.IndexAny(src, "!@"); i >= 0 {
		src = src[:i]
	}
	return src
}

// Param returns the i-th parameter or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Line builds an outbound command line. The final parameter is written in
// trailing form only when it needs to be.
func Line(command string, params ...string) []byte {
	return build(false, command, params)
}

// LineTrailing is like Line but always writes the final parameter in
// trailing form, as USER realnames and message bodies conventionally are.
func LineTrailing(command string, params ...string) []byte {
	return build(true, command, params)
}

func build(forceTrailing bool, command string, params []string) []byte {
	var b strings.Builder
	b.WriteString(command)
	for i, p := range params {
		b.WriteByte(' ')
		last := i == len(params)-1
		if last && (forceTrailing || p == "" || p[0] == ':' || strings.IndexByte(p, ' ') >= 0) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return []byte(b.String())
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// IsNumeric reports whether cmd is a three digit reply code.
func IsNumeric(cmd string) bool {
	if len(cmd) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if cmd[i] < '0' || cmd[i] > '9' {
			return false
		}
	}
	return true
}
