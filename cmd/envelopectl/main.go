package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	if err := newRootCommand(logger).Execute(); err != nil {
		logger.WithError(err).Error("envelopectl failed")
		os.Exit(1)
	}
}
