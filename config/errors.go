package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", or \"regtest\")")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrInvalidLogFormat indicates the log format is not recognized.
	ErrInvalidLogFormat = errors.New("config: invalid log format (must be \"text\" or \"json\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrInvalidStore indicates an unknown store backend.
	ErrInvalidStore = errors.New("config: invalid store (must be \"bolt\" or \"postgres\")")

	// ErrMissingDSN indicates the postgres store was selected without a DSN.
	ErrMissingDSN = errors.New("config: postgres store requires dsn")

	// ErrInvalidDuration indicates a duration that does not parse or is not positive.
	ErrInvalidDuration = errors.New("config: invalid duration")

	// ErrInvalidNumber indicates a numeric value that does not parse.
	ErrInvalidNumber = errors.New("config: invalid number")

	// ErrInvalidProofChannel indicates an unknown proof channel.
	ErrInvalidProofChannel = errors.New("config: invalid proof channel (must be \"gist\", \"dns\", or \"http\")")

	// ErrInvalidProofURL indicates the http proof channel lacks a usable URL template.
	ErrInvalidProofURL = errors.New("config: http proof channel requires proofurl containing {handle}")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
