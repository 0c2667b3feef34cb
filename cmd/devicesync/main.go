// Command devicesync copies punches from a biometric terminal into orgdesk.
//
//	devicesync start   poll the terminal every ORGDESK_DEVICE_POLL_INTERVAL
//	devicesync sync    run a single poll and exit
//	devicesync test    check that the terminal and the server answer
//	devicesync info    print the terminal details and enrolled users
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/orgdesk/internal/config"
	"github.com/example/orgdesk/internal/devicesync"
	"github.com/example/orgdesk/internal/logging"
)

const usage = `usage: devicesync <command>

commands:
  start   poll the terminal until interrupted
  sync    run one poll and exit
  test    check terminal and server connectivity
  info    print terminal details and enrolled users
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	command := args[0]
	switch command {
	case "start", "sync", "test", "info":
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "failed to read .env: %v\n", err)
		return 1
	}
	cfg, err := config.LoadDeviceSync()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat).With("device_id", cfg.DeviceID)

	session := &devicesync.Session{
		Terminal:  devicesync.NewTerminalClient(cfg.DeviceURL, nil, cfg.Timeout),
		Server:    devicesync.NewServerClient(cfg.ServerURL, cfg.DeviceID, []byte(cfg.DeviceSecret), cfg.Timeout),
		BatchSize: cfg.BatchSize,
		Logger:    logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "start":
		err = session.Run(ctx, cfg.PollInterval)
	case "sync":
		var result devicesync.SyncResult
		result, err = session.SyncOnce(ctx)
		if err == nil {
			fmt.Fprintf(stdout, "fetched %d, processed %d, skipped %d, unmatched %d in %d batch(es); watermark %s\n",
				result.Fetched, result.Processed, result.Skipped, result.Unmatched, result.Batches, formatWatermark(result))
		}
	case "test":
		err = session.Test(ctx)
		if err == nil {
			fmt.Fprintln(stdout, "terminal and server are reachable")
		}
	case "info":
		err = session.Info(ctx, stdout)
	}
	if err != nil {
		logger.Error("devicesync command failed", "command", command, "error", err)
		return 1
	}
	return 0
}

func formatWatermark(result devicesync.SyncResult) string {
	if result.Watermark.IsZero() {
		return "none"
	}
	return result.Watermark.UTC().Format(time.RFC3339)
}
