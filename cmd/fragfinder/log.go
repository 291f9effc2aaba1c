package main

import (
	"io"
	"os"

	"github.com/morikuni/failure"
	"github.com/sirupsen/logrus"
	"github.com/sters/fragfinder/fragfinder"
)

func (a *app) setupLog() error {
	a.log.SetOutput(a.stderr)

	a.log.SetLevel(logrus.InfoLevel)
	if a.verbose {
		a.log.SetLevel(logrus.DebugLevel)
	}

	switch a.logFormat {
	case "text", "":
		a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		a.log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return failure.New(fragfinder.ErrInvalidArgument,
			failure.Messagef("unknown log format %q, want text or json", a.logFormat),
		)
	}

	if a.logPath == "" {
		return nil
	}

	f, err := os.OpenFile(a.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return failure.Translate(err, fragfinder.ErrInvalidArgument,
			failure.Messagef("cannot open log file %s", a.logPath),
		)
	}
	a.logFile = f
	a.log.SetOutput(io.MultiWriter(a.stderr, f))

	return nil
}

func (a *app) closeLog() {
	if a.logFile == nil {
		return
	}
	_ = a.logFile.Close()
	a.logFile = nil
}
