package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// newLogger creates a logger at the given level name. An unknown level falls
// back to info rather than failing the command.
func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		fmt.Printf("Invalid LOG_LEVEL '%s', defaulting to 'info'\n", level)
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log
}
