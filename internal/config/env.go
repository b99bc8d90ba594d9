package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnvConnector overlays MAMIRC_* environment variables onto cfg.
func FromEnvConnector(cfg *ConnectorConfig) {
	if v := os.Getenv("MAMIRC_LISTEN_ADDRESS"); v != "" {
		cfg.Listen.Address = v
	}
	if v := os.Getenv("MAMIRC_CONNECTOR_PASSWORD"); v != "" {
		cfg.Listen.Password = v
	}
	if v := os.Getenv("MAMIRC_AUTH_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Listen.AuthTimeout = Duration(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("MAMIRC_IRC_INSECURE_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IRC.InsecureSkipVerify = b
		}
	}
	archiveFromEnv(&cfg.Archive)
	commonFromEnv(&cfg.Metrics.Address, &cfg.Log.Level, &cfg.Log.Format)
}

// FromEnvProcessor overlays MAMIRC_* environment variables onto cfg.
func FromEnvProcessor(cfg *ProcessorConfig) {
	if v := os.Getenv("MAMIRC_CONNECTOR_ADDRESS"); v != "" {
		cfg.Connector.Address = v
	}
	if v := os.Getenv("MAMIRC_CONNECTOR_PASSWORD"); v != "" {
		cfg.Connector.Password = v
	}
	if v := os.Getenv("MAMIRC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	archiveFromEnv(&cfg.Archive)
	commonFromEnv(&cfg.Metrics.Address, &cfg.Log.Level, &cfg.Log.Format)
}

func archiveFromEnv(a *ArchiveConfig) {
	if v := os.Getenv("MAMIRC_ARCHIVE_DRIVER"); v != "" {
		a.Driver = v
	}
	if v := os.Getenv("MAMIRC_ARCHIVE_PATH"); v != "" {
		a.Path = v
	}
	if v := os.Getenv("MAMIRC_ARCHIVE_DSN"); v != "" {
		a.DSN = v
	}
	if v := os.Getenv("MAMIRC_ARCHIVE_GATHER_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			a.GatherWindow = Duration(time.Duration(n) * time.Millisecond)
		}
	}
	if v := os.Getenv("MAMIRC_ARCHIVE_MAX_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			a.MaxBatch = n
		}
	}
}

func commonFromEnv(metricsAddr, level, format *string) {
	if v := os.Getenv("MAMIRC_METRICS_ADDRESS"); v != "" {
		*metricsAddr = v
	}
	if v := os.Getenv("MAMIRC_LOG_LEVEL"); v != "" {
		*level = v
	}
	if v := os.Getenv("MAMIRC_LOG_FORMAT"); v != "" {
		*format = v
	}
}
