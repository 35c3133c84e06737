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

	"chatkat/pkg/state/logger"
)

// Abort logs a fatal startup error, writes a crash dump under
// <dbPath>/state/crash when possible and exits with status 2.
func Abort(contextMsg string, err error, dbPath string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	if path, derr := writeCrashDump(dbPath, contextMsg, err); derr != nil {
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Info("wrote_crash_dump", "path", path)
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", contextMsg, err)
	logger.Sync()
	os.Exit(2)
}

func writeCrashDump(dbPath, reason string, err error) (string, error) {
	dir := "./crash"
	if dbPath != "" {
		dir = filepath.Join(dbPath, "state", "crash")
	}
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("failed to create crash dir: %w", e)
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, "crash-"+ts+".txt")

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	body := fmt.Sprintf("time: %s\nreason: %s\nerror: %v\n\n%s", ts, reason, err, buf[:n])
	if e := os.WriteFile(path, []byte(body), 0o600); e != nil {
		return "", e
	}
	return path, nil
}

// SetupSignalHandler returns a context cancelled on SIGINT/SIGTERM.
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
