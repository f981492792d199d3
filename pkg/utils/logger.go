package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var Logger *logrus.Logger

// InitLogger configures the global logger. output "file" requires a
// path; anything else logs to stdout.
func InitLogger(level, format, output, file string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	var formatter logrus.Formatter
	if format == "json" {
		formatter = &logrus.JSONFormatter{TimestampFormat: timestampLayout}
	} else {
		formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampLayout,
		}
	}

	var out io.Writer = os.Stdout
	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		out = f
	}

	Logger = logrus.New()
	Logger.SetLevel(logLevel)
	Logger.SetFormatter(formatter)
	Logger.SetOutput(out)

	return nil
}

// GetLogger returns the global logger, initializing it with defaults on
// first use
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}
