package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kwhalen/projectmap/internal/api"
	"github.com/kwhalen/projectmap/internal/config"
	"github.com/kwhalen/projectmap/internal/notify"
	"github.com/kwhalen/projectmap/internal/source"
	"github.com/kwhalen/projectmap/internal/storage"
	"github.com/kwhalen/projectmap/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the projectmap server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	src := buildSource(cfg)
	hub := notify.NewHub()
	engine := syncer.New(store, src, syncer.Config{
		TTL:                cfg.Sync.TTL,
		FullResyncInterval: cfg.Sync.FullResyncInterval,
		View:               cfg.Airtable.View,
	}, hub)

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Engine:    engine,
		Hub:       hub,
		Mode:      cfg.Mode(),
		GmapsKey:  cfg.UI.GmapsAPIKey,
		AuthToken: cfg.Server.AuthToken,
		PublicDir: cfg.UI.PublicDir,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("projectmap listening", "addr", addr, "mode", cfg.Mode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildSource(cfg config.Config) source.Source {
	if cfg.Mode() == source.ModeCSV {
		return source.NewCSV(cfg.CSV.URL, nil)
	}
	return source.NewAirtable(source.AirtableConfig{
		BaseID: cfg.Airtable.BaseID,
		Table:  cfg.Airtable.Table,
		Token:  cfg.Airtable.Token,
		View:   cfg.Airtable.View,
		Fields: cfg.Airtable.Fields,
	})
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
