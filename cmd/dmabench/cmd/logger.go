package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

func configLogger(l *logrus.Logger, level, format string) error {
	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("%s; possible levels: %s", err, logrus.AllLevels)
	}
	l.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "text":
		l.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
		}
	case "json":
		l.Formatter = &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		}
	default:
		return fmt.Errorf("unknown log format `%s`. possible formats: %s",
			format, []string{"text", "json"})
	}

	return nil
}
