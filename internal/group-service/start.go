package groupservice

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"group-ride/internal/config"
	"group-ride/internal/group-service/adapters/driver/myhttp"
	"group-ride/internal/mylogger"
)

// Execute runs the group-service until a shutdown signal arrives or the
// server fails.
func Execute(ctx context.Context, mylog mylogger.Logger, cfg *config.Config, inMemory bool) error {
	newCtx, close := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer close()

	server := myhttp.NewServer(newCtx, ctx, mylog, cfg, inMemory)

	// Run server in goroutine
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- server.Run()
	}()

	// Wait for signal or server crash
	select {
	case <-newCtx.Done():
		mylog.Action("shutdown_signal_received").Info("Shutdown signal received")
		return server.Stop(context.Background())
	case err := <-runErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			mylog.Action("group_service_failed").Error("Server failed unexpectedly", err)
			return err
		}
		mylog.Action("server_stopped").Info("Server exited normally")
		return nil
	}
}
