package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConnector reads a Connector configuration file, applies the .env
// file and MAMIRC_* overrides, and validates the result.
func LoadConnector(path string) (ConnectorConfig, error) {
	cfg := DefaultConnector()
	if err := decodeFile(path, &cfg); err != nil {
		return ConnectorConfig{}, err
	}
	FromEnvConnector(&cfg)
	cfg.Archive.fillPath(DefaultDataDir())
	if err := cfg.Validate(); err != nil {
		return ConnectorConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadProcessor reads a Processor configuration file, applies the .env
// file and MAMIRC_* overrides, and validates the result.
func LoadProcessor(path string) (ProcessorConfig, error) {
	cfg := DefaultProcessor()
	if err := decodeFile(path, &cfg); err != nil {
		return ProcessorConfig{}, err
	}
	FromEnvProcessor(&cfg)
	cfg.Archive.fillPath(DefaultDataDir())
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(DefaultDataDir(), "processor")
	}
	if err := cfg.Validate(); err != nil {
		return ProcessorConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadProcessorFile decodes a Processor configuration file and applies
// MAMIRC_* overrides without validating it. An empty path yields the
// defaults. Connector files decode too, with their extra fields ignored.
func ReadProcessorFile(path string) (ProcessorConfig, error) {
	cfg := DefaultProcessor()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return ProcessorConfig{}, err
		}
	}
	FromEnvProcessor(&cfg)
	return cfg, nil
}

// ReloadProfiles re-reads only the profile list of a Processor
// configuration file.
func ReloadProfiles(path string) ([]NetworkProfile, error) {
	cfg := DefaultProcessor()
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := validateProfiles(cfg.Profiles); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg.Profiles, nil
}

func decodeFile(path string, into interface{}) error {
	if path == "" {
		return errors.New("config: no configuration file given")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, into); err != nil {
			return &DecodeError{Path: path, Err: err}
		}
	default:
		if err := json.Unmarshal(b, into); err != nil {
			return &DecodeError{Path: path, Err: err}
		}
	}
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	return nil
}

// loadDotEnv populates unset variables from an optional .env file.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func (a *ArchiveConfig) fillPath(dataDir string) {
	if a.Driver == "sqlite" && a.Path == "" {
		a.Path = filepath.Join(dataDir, "archive.sqlite")
	}
}

// DecodeError reports a configuration file that could not be parsed.
// Its message is always a single line.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	var parts []string
	for _, l := range strings.Split(e.Err.Error(), "\n") {
		if l = strings.TrimSpace(l); l != "" && l != "yaml: unmarshal errors:" {
			parts = append(parts, l)
		}
	}
	return fmt.Sprintf("config: %s: %s", e.Path, strings.Join(parts, "; "))
}

func (e *DecodeError) Unwrap() error { return e.Err }
