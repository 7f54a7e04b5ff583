package config

import (
	"fmt"
	"strings"
	"time"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}

	switch cfg.Store {
	case "bolt":
	case "postgres":
		if cfg.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return ErrInvalidStore
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"verifywindow", cfg.VerifyWindow},
		{"invitettl", cfg.InviteTTL},
		{"cachettl", cfg.CacheTTL},
		{"settletimeout", cfg.SettleTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidDuration, d.name)
		}
	}

	switch cfg.ProofChannel {
	case ProofGist, ProofDNS:
	case ProofHTTP:
		if !strings.Contains(cfg.ProofURL, "{handle}") {
			return ErrInvalidProofURL
		}
	default:
		return ErrInvalidProofChannel
	}

	return nil
}
