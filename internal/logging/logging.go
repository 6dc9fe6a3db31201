package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls the process logger. Logs always go to stderr so stdout
// stays reserved for command output and the MCP stdio transport.
type Config struct {
	Level  string
	Format string
}

func DefaultConfig() Config {
	return Config{Level: "warn", Format: "json"}
}

// New builds a logrus logger writing to w (stderr when nil).
func New(cfg Config, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	if w == nil {
		w = os.Stderr
	}
	logger.SetOutput(w)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var secretMarkers = []string{"key", "secret", "password", "signature", "private", "authorization"}

// Redact copies params, masking values whose key looks like a credential.
func Redact(params map[string]any) logrus.Fields {
	out := make(logrus.Fields, len(params))
	for k, v := range params {
		if isSecretKey(k) {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range secretMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
