package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ralt/aptpool/internal/cli"
	"github.com/ralt/aptpool/internal/models"
	"github.com/sirupsen/logrus"
)

func main() {
	// Setup logging format
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// A publish interrupted by a signal leaves the live generation untouched
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		entry := logrus.NewEntry(logrus.StandardLogger())
		if kind, ok := models.KindOf(err); ok {
			entry = entry.WithField("kind", kind.String())
		}
		entry.Error(err)
		stop()
		os.Exit(1)
	}
}
