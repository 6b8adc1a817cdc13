// Package logging builds the process-wide slog.Logger from LoggingConfig,
// covering the file/syslog handler choice and facility mapping
// settings.py's Settings.configure_logging implements.
package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"

	"github.com/netways/esarmor/internal/config"
)

// New builds a slog.Logger per cfg: a syslog writer at the configured
// facility, or a JSON file/stdout handler, at the configured level.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	switch cfg.Type {
	case "syslog":
		facility, err := parseFacility(cfg.Facility)
		if err != nil {
			return nil, err
		}
		tag := cfg.Application
		if tag == "" {
			tag = "esarmor"
		}
		writer, err := syslog.New(facility|syslog.LOG_INFO, tag)
		if err != nil {
			return nil, fmt.Errorf("connecting to syslog: %w", err)
		}
		return slog.New(slog.NewJSONHandler(writer, opts)), nil
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("logging.file is required when logging.log=file")
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		return slog.New(slog.NewJSONHandler(f, opts)), nil
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseFacility mirrors settings.py's log_facility mapping: only the three
// facilities the Python source recognizes are valid here.
func parseFacility(name string) (syslog.Priority, error) {
	switch name {
	case "", "authpriv":
		return syslog.LOG_AUTHPRIV, nil
	case "user":
		return syslog.LOG_USER, nil
	case "daemon":
		return syslog.LOG_DAEMON, nil
	default:
		return 0, fmt.Errorf("invalid syslog facility %q: valid facilities are user, daemon, authpriv", name)
	}
}
