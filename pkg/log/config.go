package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config declaratively describes a logger.
type Config struct {
	Level   string         `json:"level" yaml:"level"`
	Format  string         `json:"format" yaml:"format"`
	Outputs []OutputConfig `json:"outputs" yaml:"outputs"`
	// Redact lists field keys whose values are replaced with [REDACTED].
	Redact []string `json:"redact" yaml:"redact"`
	// SampleInitial/SampleThereafter enable per-message sampling when
	// SampleThereafter > 0.
	SampleInitial    int  `json:"sampleInitial" yaml:"sampleInitial"`
	SampleThereafter int  `json:"sampleThereafter" yaml:"sampleThereafter"`
	ShowCaller       bool `json:"showCaller" yaml:"showCaller"`
}

// OutputConfig selects one output: console, file or null.
type OutputConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{ShowCaller: cfg.ShowCaller}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{ShowCaller: cfg.ShowCaller}))
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("log: file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, fmt.Errorf("log: open %s: %w", oc.Path, err)
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("log: unknown output type %q", oc.Type)
		}
	}

	l := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(l).withRedactions(cfg.Redact).withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	l.slogLogger = slog.New(h)
	return l, nil
}

// ApplyConfigOrDefault is ApplyConfig with level and format overrides.
// When cfg is unusable it returns a console text logger at the configured
// level (info if that is unusable too) along with the configuration error.
func ApplyConfigOrDefault(cfg *Config, level, format string) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if level != "" {
		cfg.Level = level
	}
	if format != "" {
		cfg.Format = format
	}
	l, err := ApplyConfig(cfg)
	if err == nil {
		return l, nil
	}
	lvl := InfoLevel
	if parsed, e := ParseLevel(cfg.Level); e == nil {
		lvl = parsed
	}
	return NewLogger(WithLevel(lvl), WithFormatter(&TextFormatter{}), WithOutput(NewConsoleOutput())), err
}
