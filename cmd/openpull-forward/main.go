// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Command openpull-forward spawns a child process, connects to an
// openpull signaling session as an appender, and forwards the child's
// stdout/stderr to every connected reader as it's produced.
//
//	openpull-forward [--] <command> [args...]
//
// The connection URI is read from OPENPULL_URL, or from the -url flag,
// which takes precedence.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openpull/openpull"
	"github.com/openpull/openpull/connstring"
)

const (
	defaultExitDelay    = 150 * time.Millisecond
	defaultFlushTimeout = 2 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	urlFlag := flag.String("url", os.Getenv("OPENPULL_URL"), "openpull connection URI (default from OPENPULL_URL)")
	flag.Parse()

	command, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "openpull-forward: %v\n", err)
		return 1
	}

	if *urlFlag == "" {
		fmt.Fprintln(os.Stderr, "openpull-forward: no connection URI (set -url or OPENPULL_URL)")
		return 1
	}
	info, err := connstring.Parse(*urlFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "openpull-forward: %v\n", err)
		return 1
	}

	exitDelay := envDuration("OPENPULL_EXIT_DELAY_MS", defaultExitDelay)
	flushTimeout := envDuration("OPENPULL_FLUSH_TIMEOUT_MS", defaultFlushTimeout)

	manager := openpull.New(info, openpull.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = manager.Connect(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "openpull-forward: connecting: %v\n", err)
		return 1
	}
	defer manager.Disconnect()

	child := exec.Command(command[0], command[1:]...)
	child.Stdin = os.Stdin

	stdout, err := child.StdoutPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "openpull-forward: %v\n", err)
		return 1
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "openpull-forward: %v\n", err)
		return 1
	}

	if err := child.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "openpull-forward: starting child: %v\n", err)
		return 126
	}

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go forwardSignals(signals, child.Process)

	forwardCtx, forwardCancel := context.WithCancel(context.Background())
	forwardDone := make(chan error, 1)
	go func() {
		forwardDone <- manager.ForwardStreams(forwardCtx,
			io.TeeReader(stdout, os.Stdout),
			io.TeeReader(stderr, os.Stderr))
	}()

	waitErr := child.Wait()

	// Give the last lines already in the pipe buffers a chance to reach
	// the readers before tearing the RTC connections down.
	time.Sleep(exitDelay)

	select {
	case <-forwardDone:
	case <-time.After(flushTimeout):
		logger.Warn("flush timeout exceeded, disconnecting anyway")
	}
	forwardCancel()

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "openpull-forward: waiting for child: %v\n", waitErr)
		return 1
	}
	return 0
}

func forwardSignals(signals <-chan os.Signal, process *os.Process) {
	for sig := range signals {
		if sysSig, ok := sig.(syscall.Signal); ok {
			_ = process.Signal(sysSig)
		}
	}
}

func parseArgs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: openpull-forward [--] <command> [args...]")
	}
	if args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no command specified after --")
	}
	return args, nil
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
