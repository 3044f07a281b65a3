// Package logging configures zerolog for the SDK and its binaries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"

	// LevelDisabled silences all output, useful for library consumers that
	// bring their own logging.
	LevelDisabled LogLevel = "disabled"
)

// Component names used for child loggers.
const (
	ComponentClient     = "http-client"
	ComponentAuth       = "auth"
	ComponentDiscovery  = "discovery"
	ComponentConnection = "connection-manager"
	ComponentConnector  = "connector"
	ComponentDTR        = "dtr"
	ComponentSAMM       = "samm"
	ComponentGateway    = "gateway"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Verbose returns logger when verbose is set and a no-op logger otherwise.
// Services that only log in verbose mode derive their logger through it.
func Verbose(logger zerolog.Logger, verbose bool) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return logger
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Discovery cache hits (key, url, valid_until)
//   - Connection cache lookups (counter_party_id, transfer_id)
//   - EDR polling iterations
//
// Info: Normal operation events
//   - Discovery URLs refreshed
//   - New EDR entries stored, contract negotiations started
//   - Gateway startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Discovery refresh failed, stale URL used
//   - Retry attempts against connector or registry APIs
//   - Cached transfer unusable, renegotiating
//
// Error: Error conditions requiring attention
//   - Requests failed after retries
//   - Negotiation timeouts
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (discovery, connection, connector, dtr, ...)
//   - service: remote service name used by pkg/client
//   - discovery_key: discovery type (bpn, manufacturerPartId)
//   - counter_party_id: BPN of the remote participant
//   - counter_party_address: DSP address of the remote connector
//   - transfer_id: transfer process identifier
//   - negotiation_id: contract negotiation identifier
//   - error_class: error classification (client, server, rate_limit, network)
