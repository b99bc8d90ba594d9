// Package inspect filters archived events with CEL expressions for the
// archive command line tool.
package inspect

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/irc"
)

// Filter wraps a compiled CEL program. The zero Filter, and one built from
// an empty expression, matches everything.
//
// Variables available to expressions:
//
//	connection  int     connection id
//	sequence    int     per-connection sequence
//	timestamp   int     milliseconds since the epoch
//	kind        string  "connection", "receive" or "send"
//	line        string  raw line
//	command     string  upper-cased IRC command, "" for connection events
//	source      string  IRC prefix nickname, "" when absent
//	params      list    IRC parameters
//	now_ms      int     current time
type Filter struct {
	prog    cel.Program
	enabled bool
	now     func() time.Time
}

// Compile parses and type-checks expr, which must yield a bool.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("connection", cel.IntType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("timestamp", cel.IntType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("line", cel.StringType),
		cel.Variable("command", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("params", cel.ListType(cel.StringType)),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("inspect: parse filter: %w", iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, fmt.Errorf("inspect: check filter: %w", iss2.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("inspect: filter yields %s, want bool", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true, now: time.Now}, nil
}

// Match evaluates the expression against ev. Evaluation errors count as no
// match.
func (f Filter) Match(ev event.Event) bool {
	if !f.enabled {
		return true
	}
	command, source := "", ""
	params := []string{}
	if ev.Type != event.Connection {
		if msg, err := irc.Parse(ev.Line); err == nil {
			command, source = msg.Command, msg.Nick()
			if msg.Params != nil {
				params = msg.Params
			}
		}
	} else if verb, _, _ := strings.Cut(string(ev.Line), " "); verb != "" {
		command = verb
	}
	out, _, err := f.prog.Eval(map[string]any{
		"connection": ev.ConnectionID,
		"sequence":   ev.Sequence,
		"timestamp":  ev.Timestamp,
		"kind":       ev.Type.String(),
		"line":       string(ev.Line),
		"command":    command,
		"source":     source,
		"params":     params,
		"now_ms":     f.now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
