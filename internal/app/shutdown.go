package app

import (
	"context"
	"errors"

	"chatkat/pkg/state/logger"
)

// Shutdown stops intake first, drains queued events and running backfills,
// flushes pending entries and closes the store. Call it once the context
// passed to Run is done.
func (a *App) Shutdown(ctx context.Context) error {
	a.state.Store("shutting_down")
	var errs []error

	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	if err := a.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Backfill.WaitTimeout.Duration())
	if err := a.backfiller.Wait(waitCtx); err != nil {
		logger.Warn("backfill_wait_timeout", "error", err)
	}
	cancel()

	if a.digest != nil {
		a.digest.Wait()
	}
	if err := a.coord.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.limiter.Stop()
	if err := a.capture.Close(); err != nil {
		logger.Warn("capture_close_failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err == nil {
		a.state.Store("stopped")
		logger.Info("app_stopped")
	} else {
		logger.Error("app_shutdown_failed", "error", err)
	}
	return err
}
