// Package config loads and validates the daemon's TOML configuration
// file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/postsrsd/postsrsd-go/internal/domaintrie"
)

// Config mirrors every recognized key from the daemon's configuration
// file, one field per key.
type Config struct {
	SRSDomain         string   `toml:"srs-domain"`
	Domains           []string `toml:"domains"`
	DomainsFile       string   `toml:"domains-file"`
	OriginalEnvelope  string   `toml:"original-envelope"` // "embedded" | "database"
	Separator         string   `toml:"separator"`
	HashLength        int      `toml:"hash-length"`
	HashMinimum       int      `toml:"hash-minimum"`
	AlwaysRewrite     bool     `toml:"always-rewrite"`
	Socketmap         string   `toml:"socketmap"`
	KeepAlive         int      `toml:"keep-alive"`
	Milter            string   `toml:"milter"`
	SecretsFile       string   `toml:"secrets-file"`
	EnvelopeDatabase  string   `toml:"envelope-database"`
	PidFile           string   `toml:"pid-file"`
	UnprivilegedUser  string   `toml:"unprivileged-user"`
	ChrootDir         string   `toml:"chroot-dir"`
	Daemonize         bool     `toml:"daemonize"`
	Syslog            bool     `toml:"syslog"`
}

// Defaults matching spec.md §6/§3.
const (
	DefaultSeparator  = "="
	DefaultHashLength = 4
	DefaultHashMin    = 4
	DefaultKeepAlive  = 30
	DefaultSocketmap  = "unix:/var/spool/postfix/srs"
	DefaultMaxAge     = 21
)

// Load reads and parses a TOML configuration file, applies defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.DomainsFile != "" {
		domains, err := loadDomainsFile(c.DomainsFile)
		if err != nil {
			return nil, err
		}
		c.Domains = append(c.Domains, domains...)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Separator == "" {
		c.Separator = DefaultSeparator
	}
	if c.HashLength == 0 {
		c.HashLength = DefaultHashLength
	}
	if c.HashMinimum == 0 {
		c.HashMinimum = DefaultHashMin
	}
	if c.Socketmap == "" {
		c.Socketmap = DefaultSocketmap
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.OriginalEnvelope == "" {
		c.OriginalEnvelope = "embedded"
	}
}

// Validate enforces the cross-field invariants spec.md §3/§6 require.
func (c *Config) Validate() error {
	if c.SRSDomain == "" && len(c.Domains) == 0 && c.DomainsFile == "" {
		return fmt.Errorf("config: srs-domain or at least one of domains/domains-file is required")
	}
	if c.HashMinimum > c.HashLength || c.HashLength > 20 {
		return fmt.Errorf("config: hash-minimum must be <= hash-length <= 20")
	}
	switch c.Separator {
	case "=", "+", "-":
	default:
		return fmt.Errorf("config: separator must be one of '=', '+', '-'")
	}
	switch c.OriginalEnvelope {
	case "embedded":
	case "database":
		if c.EnvelopeDatabase == "" {
			return fmt.Errorf("config: envelope-database is required when original-envelope = \"database\"")
		}
	default:
		return fmt.Errorf("config: original-envelope must be \"embedded\" or \"database\"")
	}
	return nil
}

// loadDomainsFile parses a domains file: one domain or suffix per line,
// '#' starts a to-end-of-line comment, whitespace is trimmed.
func loadDomainsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading domains file %s: %w", path, err)
	}
	defer f.Close()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !domaintrie.Valid(line) {
			return nil, fmt.Errorf("config: domains file %s: invalid domain %q", path, line)
		}
		domains = append(domains, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading domains file %s: %w", path, err)
	}
	return domains, nil
}
