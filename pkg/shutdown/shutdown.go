package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"assetbridge/pkg/logger"
)

// exit is replaced in tests.
var exit = os.Exit

// Abort handles startup-fatal errors: it logs, writes a crash dump into
// crashDir (skipped when empty), waits delaySeconds and exits with code 2.
func Abort(contextMsg string, err error, crashDir string, delaySeconds ...int) {
	delay := 0
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", contextMsg, err)
	if crashDir != "" {
		dumpPath, derr := WriteCrashDump(crashDir, contextMsg, err)
		if derr != nil {
			logger.Error("crash_dump_failed", "error", derr)
		} else {
			logger.Error("startup_fatal_crashdump", "path", dumpPath)
		}
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(1 * time.Second)
	}
	exit(2)
}

// WriteCrashDump writes the reason and all goroutine stacks to a new file in
// dir and returns its path.
func WriteCrashDump(dir, reason string, err error) (string, error) {
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("failed to create crash dir: %w", e)
	}
	dumpPath := filepath.Join(dir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))

	f, ferr := os.CreateTemp(dir, ".crash-*.tmp")
	if ferr != nil {
		return "", fmt.Errorf("failed to create temp crash file: %w", ferr)
	}
	// ensure temp removed if we fail
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", err)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	_, _ = f.Write(buf[:n])
	_ = f.Sync()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close crash dump: %w", err)
	}

	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", fmt.Errorf("failed to move crash dump into place: %w", err)
	}
	_ = os.Chmod(dumpPath, 0o600)
	return dumpPath, nil
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and returns a
// cancellable context that is cancelled when either signal arrives. Use the
// cancel function to stop watching and to release resources.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	return ctx, cancel
}
