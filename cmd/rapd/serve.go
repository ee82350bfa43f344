package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adapt/rap-engine/api"
)

var demoMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve the reconciliation API. Runs are triggered per course over
HTTP and execute in the background; the server drains active runs before
exiting on SIGINT or SIGTERM.

With --demo the server backs onto an in-memory LMS fake seeded with one
course, so the whole API can be exercised without Canvas credentials.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&demoMode, "demo", false, "Serve a seeded in-memory LMS instead of Canvas")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := buildDeps(cfg, demoMode)
	if err != nil {
		return err
	}
	defer d.close()

	runner := api.NewRunner(newReconciler(cfg, d), d.state, d.sources, logger)
	handler := api.NewHandler(runner, d.state, d.client, d.courses, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine so shutdown can be handled gracefully
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.ListenAddr),
			zap.Bool("demo", demoMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first, then drain background runs so every
	// accepted run reaches a terminal status before the process exits.
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := runner.Shutdown(ctx); err != nil {
		logger.Warn("runs still active at shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
