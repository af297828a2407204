package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New builds a logrus logger writing to out. format is "text" or "json".
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return l, nil
}
