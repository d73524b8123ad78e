package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

// verbosityLevel maps the number of -v flags to a log level: warnings only
// by default, progress lines with -v, protocol traces with -vv.
func verbosityLevel(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.WarnLevel
	case verbosity == 1:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// setupLogging configures the standard logger and returns it. Log lines go
// to w so they never mix with device output on stdout.
func setupLogging(verbosity int, w io.Writer) *logrus.Logger {
	logger := logrus.StandardLogger()
	logger.SetOutput(w)
	logger.SetLevel(verbosityLevel(verbosity))
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: verbosity < 2,
		FullTimestamp:    true,
	})
	return logger
}
