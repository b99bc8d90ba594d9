package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports the first problem with cfg.
func (c ConnectorConfig) Validate() error {
	if c.Listen.Address == "" {
		return errors.New("listen.address is required")
	}
	if c.Listen.Password == "" {
		return errors.New("listen.password is required")
	}
	if strings.ContainsAny(c.Listen.Password, "\r\n") {
		return errors.New("listen.password must be a single line")
	}
	if c.Listen.AuthTimeout <= 0 {
		return errors.New("listen.authTimeout must be positive")
	}
	if c.IRC.MaxLineLength <= 0 {
		return errors.New("irc.maxLineLength must be positive")
	}
	return c.Archive.validate()
}

// Validate reports the first problem with cfg.
func (c ProcessorConfig) Validate() error {
	if c.Connector.Address == "" {
		return errors.New("connector.address is required")
	}
	if c.Connector.Password == "" {
		return errors.New("connector.password is required")
	}
	if c.DataDir == "" {
		return errors.New("dataDir is required")
	}
	if c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return errors.New("reconnect delays must satisfy 0 < initialDelay <= maxDelay")
	}
	if err := c.Archive.validate(); err != nil {
		return err
	}
	return validateProfiles(c.Profiles)
}

func (a ArchiveConfig) validate() error {
	switch a.Driver {
	case "sqlite":
		if a.Path == "" {
			return errors.New("archive.path is required for the sqlite driver")
		}
	case "postgres":
		if a.DSN == "" {
			return errors.New("archive.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("archive.driver %q is not one of sqlite, postgres", a.Driver)
	}
	if a.MaxBatch <= 0 || a.QueueSize <= 0 {
		return errors.New("archive.maxBatch and archive.queueSize must be positive")
	}
	return nil
}

func validateProfiles(profiles []NetworkProfile) error {
	seen := make(map[string]bool, len(profiles))
	for i, p := range profiles {
		if p.Name == "" || strings.ContainsAny(p.Name, " \r\n\x00") {
			return fmt.Errorf("profiles[%d]: name must be non-empty without spaces", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("profiles[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if !p.Connect {
			continue
		}
		if len(p.Servers) == 0 {
			return fmt.Errorf("profile %q: at least one server is required", p.Name)
		}
		for j, s := range p.Servers {
			if s.Host == "" || strings.ContainsAny(s.Host, " \r\n") || s.Port <= 0 || s.Port > 65535 {
				return fmt.Errorf("profile %q: servers[%d] needs a host and a port in 1..65535", p.Name, j)
			}
		}
		if len(p.Nicknames) == 0 {
			return fmt.Errorf("profile %q: at least one nickname is required", p.Name)
		}
		if p.Username == "" {
			return fmt.Errorf("profile %q: username is required", p.Name)
		}
	}
	return nil
}
