package config

import (
	"strings"
	"time"

	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

// ConnectorConfig configures the Connector daemon.
type ConnectorConfig struct {
	Listen  ListenConfig  `json:"listen" yaml:"listen"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
	IRC     IRCConfig     `json:"irc" yaml:"irc"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Log     logpkg.Config `json:"log" yaml:"log"`
}

// ListenConfig is the Processor-facing listener.
type ListenConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	// AuthTimeout bounds the wait for the password line.
	AuthTimeout Duration `json:"authTimeout" yaml:"authTimeout"`
	// SubscriberQueue bounds the lines buffered for a slow subscriber before
	// it is detached.
	SubscriberQueue int `json:"subscriberQueue" yaml:"subscriberQueue"`
}

// ArchiveConfig selects and tunes the durable event store.
type ArchiveConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver" yaml:"driver"`
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path"`
	// DSN is the Postgres connection string.
	DSN          string   `json:"dsn" yaml:"dsn"`
	GatherWindow Duration `json:"gatherWindow" yaml:"gatherWindow"`
	MaxBatch     int      `json:"maxBatch" yaml:"maxBatch"`
	QueueSize    int      `json:"queueSize" yaml:"queueSize"`
}

// IRCConfig tunes outbound IRC sockets.
type IRCConfig struct {
	ConnectTimeout     Duration `json:"connectTimeout" yaml:"connectTimeout"`
	MaxLineLength      int      `json:"maxLineLength" yaml:"maxLineLength"`
	InsecureSkipVerify bool     `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

// MetricsConfig enables the ops HTTP endpoint when Address is set.
type MetricsConfig struct {
	Address string `json:"address" yaml:"address"`
}

// ProcessorConfig configures the Processor daemon.
type ProcessorConfig struct {
	Connector ConnectorEndpoint `json:"connector" yaml:"connector"`
	Archive   ArchiveConfig     `json:"archive" yaml:"archive"`
	// DataDir holds the Processor's Pebble state (message windows).
	DataDir   string           `json:"dataDir" yaml:"dataDir"`
	Reconnect ReconnectConfig  `json:"reconnect" yaml:"reconnect"`
	Profiles  []NetworkProfile `json:"profiles" yaml:"profiles"`
	Metrics   MetricsConfig    `json:"metrics" yaml:"metrics"`
	Log       logpkg.Config    `json:"log" yaml:"log"`
}

// ConnectorEndpoint is where the Processor attaches.
type ConnectorEndpoint struct {
	Address     string   `json:"address" yaml:"address"`
	Password    string   `json:"password" yaml:"password"`
	DialTimeout Duration `json:"dialTimeout" yaml:"dialTimeout"`
}

// ReconnectConfig bounds the per-profile backoff.
type ReconnectConfig struct {
	InitialDelay Duration `json:"initialDelay" yaml:"initialDelay"`
	MaxDelay     Duration `json:"maxDelay" yaml:"maxDelay"`
}

// NetworkProfile is one named IRC network the Processor keeps connected.
type NetworkProfile struct {
	Name      string   `json:"name" yaml:"name"`
	Connect   bool     `json:"connect" yaml:"connect"`
	Servers   []Server `json:"servers" yaml:"servers"`
	Nicknames []string `json:"nicknames" yaml:"nicknames"`
	Username  string   `json:"username" yaml:"username"`
	Realname  string   `json:"realname" yaml:"realname"`
	// NickServPassword is sent as IDENTIFY after registration when set.
	NickServPassword string `json:"nickservPassword" yaml:"nickservPassword"`
	// Channels lists "#chan" or "#chan key" entries.
	Channels []string `json:"channels" yaml:"channels"`
}

// Server is one address of a network.
type Server struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	TLS  bool   `json:"tls" yaml:"tls"`
}

// SplitChannel separates a channel entry into name and optional key.
func SplitChannel(entry string) (name, key string) {
	entry = strings.TrimSpace(entry)
	name, key, _ = strings.Cut(entry, " ")
	return name, strings.TrimSpace(key)
}

// ChannelNames returns the channel names without keys.
func (p NetworkProfile) ChannelNames() []string {
	out := make([]string, 0, len(p.Channels))
	for _, c := range p.Channels {
		name, _ := SplitChannel(c)
		out = append(out, name)
	}
	return out
}

// ProfileMap indexes profiles by name.
func (c ProcessorConfig) ProfileMap() map[string]NetworkProfile {
	m := make(map[string]NetworkProfile, len(c.Profiles))
	for _, p := range c.Profiles {
		m[p.Name] = p
	}
	return m
}

// DefaultConnector returns built-in Connector defaults.
func DefaultConnector() ConnectorConfig {
	return ConnectorConfig{
		Listen: ListenConfig{
			Address:         "127.0.0.1:6667",
			AuthTimeout:     Duration(3 * time.Second),
			SubscriberQueue: 65536,
		},
		Archive: defaultArchive(),
		IRC: IRCConfig{
			ConnectTimeout: Duration(30 * time.Second),
			MaxLineLength:  1000,
		},
		Log: defaultLog(),
	}
}

// DefaultProcessor returns built-in Processor defaults.
func DefaultProcessor() ProcessorConfig {
	return ProcessorConfig{
		Connector: ConnectorEndpoint{
			Address:     "127.0.0.1:6667",
			DialTimeout: Duration(10 * time.Second),
		},
		Archive: defaultArchive(),
		Reconnect: ReconnectConfig{
			InitialDelay: Duration(1000 * time.Millisecond),
			MaxDelay:     Duration(200000 * time.Millisecond),
		},
		Log: defaultLog(),
	}
}

func defaultArchive() ArchiveConfig {
	return ArchiveConfig{
		Driver:       "sqlite",
		GatherWindow: Duration(200 * time.Millisecond),
		MaxBatch:     1024,
		QueueSize:    4096,
	}
}

// defaultLog redacts the NickServ password wherever it is logged as a field.
func defaultLog() logpkg.Config {
	return logpkg.Config{Level: "info", Format: "text", Redact: []string{"nickserv_password"}}
}
