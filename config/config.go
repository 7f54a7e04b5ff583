// Package config loads contribsplit settings from a key = value file with
// CONTRIBSPLIT_<KEY> environment overrides.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes environment overrides: CONTRIBSPLIT_NETWORK overrides network.
const EnvPrefix = "CONTRIBSPLIT_"

// Proof channel names.
const (
	ProofGist = "gist"
	ProofDNS  = "dns"
	ProofHTTP = "http"
)

// Config holds every setting of a contribsplit deployment.
type Config struct {
	DataDir   string
	Network   string // mainnet, testnet or regtest
	LogLevel  string
	LogFormat string // text or json
	LogFile   string // empty means stderr

	Store string // bolt or postgres
	DSN   string

	RPCURL  string
	RPCUser string
	RPCPass string

	GitHubToken string

	VerifyWindow  time.Duration
	InviteTTL     time.Duration
	CacheTTL      time.Duration
	SettleTimeout time.Duration
	FeeReserve    uint64

	ProofChannel string
	ProofURL     string // http channel template with {handle}
	DNSResolver  string // DNSSEC upstream host:port; empty uses the system resolver
}

// DefaultDataDir returns ~/.contribsplit, or .contribsplit when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".contribsplit"
	}
	return filepath.Join(home, ".contribsplit")
}

// DefaultFeeReserve is held at every split address. It pays the settlement
// fee and leaves change above the dust limit.
const DefaultFeeReserve = uint64(1000)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		Network:       "mainnet",
		LogLevel:      "info",
		LogFormat:     "text",
		Store:         "bolt",
		VerifyWindow:  time.Hour,
		InviteTTL:     7 * 24 * time.Hour,
		CacheTTL:      24 * time.Hour,
		SettleTimeout: 2 * time.Minute,
		FeeReserve:    DefaultFeeReserve,
		ProofChannel:  ProofGist,
	}
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// BoltPath returns the bolt database location inside the data directory.
func (c Config) BoltPath() string {
	return filepath.Join(c.DataDir, "contribsplit.db")
}

// KeystoreDir returns where the authority key is kept.
func (c Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

type field struct {
	key string
	get func(*Config) string
	set func(*Config, string) error
}

func strField(key string, p func(*Config) *string) field {
	return field{
		key: key,
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func durField(key string, p func(*Config) *time.Duration) field {
	return field{
		key: key,
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s = %q", ErrInvalidDuration, key, v)
			}
			*p(c) = d
			return nil
		},
	}
}

// fields lists the keys in the order SaveConfig writes them.
var fields = []field{
	strField("datadir", func(c *Config) *string { return &c.DataDir }),
	strField("network", func(c *Config) *string { return &c.Network }),
	strField("loglevel", func(c *Config) *string { return &c.LogLevel }),
	strField("logformat", func(c *Config) *string { return &c.LogFormat }),
	strField("logfile", func(c *Config) *string { return &c.LogFile }),
	strField("store", func(c *Config) *string { return &c.Store }),
	strField("dsn", func(c *Config) *string { return &c.DSN }),
	strField("rpcurl", func(c *Config) *string { return &c.RPCURL }),
	strField("rpcuser", func(c *Config) *string { return &c.RPCUser }),
	strField("rpcpass", func(c *Config) *string { return &c.RPCPass }),
	strField("githubtoken", func(c *Config) *string { return &c.GitHubToken }),
	durField("verifywindow", func(c *Config) *time.Duration { return &c.VerifyWindow }),
	durField("invitettl", func(c *Config) *time.Duration { return &c.InviteTTL }),
	durField("cachettl", func(c *Config) *time.Duration { return &c.CacheTTL }),
	durField("settletimeout", func(c *Config) *time.Duration { return &c.SettleTimeout }),
	{
		key: "feereserve",
		get: func(c *Config) string { return strconv.FormatUint(c.FeeReserve, 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: feereserve = %q", ErrInvalidNumber, v)
			}
			c.FeeReserve = n
			return nil
		},
	},
	strField("proofchannel", func(c *Config) *string { return &c.ProofChannel }),
	strField("proofurl", func(c *Config) *string { return &c.ProofURL }),
	strField("dnsresolver", func(c *Config) *string { return &c.DNSResolver }),
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// LoadConfig reads path over DefaultConfig. Blank lines and lines starting
// with # are skipped; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		fd, ok := lookupField(key)
		if !ok {
			continue
		}
		if err := fd.set(&cfg, value); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

// ApplyEnv overrides cfg from CONTRIBSPLIT_<KEY> variables that are set.
func ApplyEnv(cfg *Config) error {
	return applyLookup(cfg, os.LookupEnv)
}

func applyLookup(cfg *Config, lookup func(string) (string, bool)) error {
	for _, f := range fields {
		v, ok := lookup(EnvPrefix + strings.ToUpper(f.key))
		if !ok {
			continue
		}
		if err := f.set(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(f.key), err)
		}
	}
	return nil
}

// Load reads the config file in dataDir if present, applies environment
// overrides and validates the result.
func Load(dataDir string) (Config, error) {
	cfg, err := LoadConfig(ConfigPath(dataDir))
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return cfg, err
	}
	if cfg.DataDir == DefaultDataDir() {
		cfg.DataDir = dataDir
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, ValidateConfig(cfg)
}

// SaveConfig writes cfg to path, creating parent directories. Secrets are
// written too, so the file is created 0600.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var b strings.Builder
	b.WriteString("# contribsplit configuration\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s = %s\n", f.key, f.get(&cfg))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
