package main

import (
	"context"
	"fmt"
	"os"

	archivecmd "github.com/nayuki/MamIRC-sub000/internal/cmd/archive"
	logpkg "github.com/nayuki/MamIRC-sub000/pkg/log"
)

func main() {
	level := os.Getenv("MAMIRC_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger, _ := logpkg.ApplyConfigOrDefault(&logpkg.Config{Level: level}, "", "")
	// Pebble and database/sql write through the standard logger.
	logpkg.RedirectStdLog(logger)

	if err := archivecmd.NewRoot().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "mamirc-archive:", err)
		os.Exit(1)
	}
}
