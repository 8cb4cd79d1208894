package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/mempack/internal/config"
	"github.com/lazypower/mempack/internal/server"
	"github.com/lazypower/mempack/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if config.Watch(rt.viper, rt.log, func(cfg *config.Config) {
		if err := rt.engine.SetScoring(cfg.Weights(), cfg.HalfLife()); err != nil {
			rt.log.Warn("scoring reload rejected", "error", err)
			return
		}
		rt.log.Info("scoring reloaded", "weights", cfg.Weights(), "half_life", cfg.HalfLife())
	}) {
		rt.log.Debug("watching config", "path", rt.viper.ConfigFileUsed())
	}

	addr := rt.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(rt.engine, rt.store, VersionString(), rt.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		rt.log.Info("mempack serving", "addr", addr, "store", store.Describe(rt.store), "events", rt.cfg.Events.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-done:
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	}
	rt.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
