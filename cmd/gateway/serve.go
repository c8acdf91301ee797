package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/httpapi"
	"github.com/steveyegge/trackergw/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the HTTP surface",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(ctx)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, "trackergw", telemetry.Exporter(comps.cfg.OTelExporter))
	if err != nil {
		return fmt.Errorf("gateway serve: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	if err := pingTracker(ctx, comps.tracker); err != nil {
		log.Printf("warning: tracker not reachable at startup: %v", err)
	}

	srv := httpapi.New(comps.engine, comps.sel, comps.runtime, comps.cfg.AllowedOrigins)
	srv.Audit = comps.audit
	srv.CategoryToggle = comps.cfg.Toggle

	httpSrv := httpapi.NewHTTPServer(fmt.Sprintf(":%d", comps.cfg.Port), srv.Handler())

	watcher, err := config.WatchCategoryToggles(comps.cfg, func(reloadErr error) {
		if reloadErr != nil {
			log.Printf("config reload failed: %v", reloadErr)
			return
		}
		log.Printf("config reloaded: %s", comps.cfg.ConfigFile)
	})
	if err != nil {
		log.Printf("warning: config watch disabled: %v", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	go func() {
		<-ctx.Done()
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		_ = comps.audit.Close()
	}()

	log.Printf("gateway listening on %s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}
