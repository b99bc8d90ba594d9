package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	if level < l.level.get() {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers, log, and the exported level method
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
	if level == FatalLevel {
		l.exit(1)
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

// Fatal logs at FatalLevel and terminates the process with status 1.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, attrsFromFieldSlice(fields))
}

// The *f variants accept either printf-style arguments, when msg contains a
// verb, or alternating key/value pairs.
func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.logf(DebugLevel, msg, args)
}

func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.logf(InfoLevel, msg, args)
}

func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.logf(WarnLevel, msg, args)
}

func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.logf(ErrorLevel, msg, args)
}

func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.logf(FatalLevel, msg, args)
}

func (l *BaseLogger) logf(level Level, msg string, args []interface{}) {
	if level < l.level.get() {
		return
	}
	if strings.ContainsRune(msg, '%') {
		l.logSkip(level, fmt.Sprintf(msg, args...), nil)
		return
	}
	l.logSkip(level, msg, argsToAttrs(args))
}

// logSkip mirrors log with one extra frame for the *f helpers.
func (l *BaseLogger) logSkip(level Level, msg string, attrs []slog.Attr) {
	var pcs [1]uintptr
	runtime.Callers(4, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
	if level == FatalLevel {
		l.exit(1)
	}
}

func (l *BaseLogger) derive(attrs []slog.Attr, extra Fields) *BaseLogger {
	nl := *l
	nl.fields = make(Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	for k, v := range extra {
		nl.fields[k] = v
	}
	if len(attrs) > 0 {
		nl.slogLogger = l.slogLogger.With(attrsToAny(attrs)...)
	}
	return &nl
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.derive([]slog.Attr{slog.Any(key, value)}, Fields{key: value})
}

func (l *BaseLogger) WithFields(fields Fields) Logger {
	return l.derive(attrsFromMap(fields), fields)
}

func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.derive([]slog.Attr{slog.Any(errorKey, err)}, Fields{errorKey: err})
}

func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	extra := make(Fields, len(fields))
	for _, f := range fields {
		extra[f.Key] = f.Value
	}
	return l.derive(attrsFromFieldSlice(fields), extra)
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	fields := ContextExtractor(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *BaseLogger) SetLevel(level Level) { l.level.set(level) }

func (l *BaseLogger) GetLevel() Level { return l.level.get() }

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}
