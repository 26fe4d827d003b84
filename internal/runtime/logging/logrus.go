package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Supported output formats for NewLogrus.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogrus builds a logrus logger for the given level and format and wraps
// it as a ServiceLogger. The returned entry is exposed so callers can share
// it with code that logs through logrus directly.
func NewLogrus(level, format string, out io.Writer) (ServiceLogger, *logrus.Entry, error) {
	lvl := logrus.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
		lvl = parsed
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("logging: unsupported log format %q", format)
	}

	entry := logrus.NewEntry(logger)
	return NewEntryServiceLogger(entry), entry, nil
}
