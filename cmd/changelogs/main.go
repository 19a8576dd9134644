// Package main is the entry point for the changelogs CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relicta-tech/changelogs/internal/cli"
)

// Version information set by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-done:
			return
		}
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping...\n", sig)
		cancel()

		shutdownTimer := time.NewTimer(shutdownTimeout)
		defer shutdownTimer.Stop()

		// A second signal or the timeout forces the exit.
		select {
		case <-done:
		case <-shutdownTimer.C:
			fmt.Fprintf(os.Stderr, "\nShutdown timeout (%v) exceeded, forcing exit\n", shutdownTimeout)
			os.Exit(1)
		case sig = <-sigChan:
			fmt.Fprintf(os.Stderr, "\nReceived second signal %v, forcing exit\n", sig)
			os.Exit(1)
		}
	}()

	exitCode := 0
	if err := cli.ExecuteContext(ctx, cli.VersionInfo{Version: version, Commit: commit, Date: date}); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Operation canceled")
			exitCode = 130 // SIGINT
		} else {
			// cobra runs with SilenceErrors
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
		}
	}

	close(done)
	cancel()
	os.Exit(exitCode)
}
