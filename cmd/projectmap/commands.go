package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kwhalen/projectmap/internal/config"
	"github.com/kwhalen/projectmap/internal/storage"
	"github.com/kwhalen/projectmap/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot sync against the configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		engine := syncer.New(store, buildSource(cfg), syncer.Config{
			TTL:                cfg.Sync.TTL,
			FullResyncInterval: cfg.Sync.FullResyncInterval,
			View:               cfg.Airtable.View,
		}, nil)

		res, err := engine.SyncIfStale(cmd.Context(), syncer.Options{ForceSync: true, ForceFull: full})
		if err != nil {
			return err
		}
		if res.Error != "" {
			return fmt.Errorf("sync failed: %s", res.Error)
		}

		count, err := store.CountProjects()
		if err != nil {
			return err
		}

		kind := "incremental"
		if res.Full {
			kind = "full"
		}
		fmt.Printf("synced (%s, mode=%s): %d changed, %d cached\n", kind, res.Mode, res.Changed, count)
		if res.Fingerprint != "" {
			fmt.Printf("fingerprint: %s\n", res.Fingerprint)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running projectmap server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 3 * time.Second}
		url := fmt.Sprintf("http://127.0.0.1:%d/api/health", cfg.Server.Port)
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("server not reachable at %s: %w", url, err)
		}
		defer resp.Body.Close()

		var health struct {
			OK       bool    `json:"ok"`
			Mode     string  `json:"mode"`
			LastSync *int64  `json:"lastSync"`
			LastFull *int64  `json:"lastFull"`
			ViewHash *string `json:"viewHash"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return fmt.Errorf("decoding health response: %w", err)
		}

		fmt.Printf("ok:        %t\n", health.OK)
		fmt.Printf("mode:      %s\n", health.Mode)
		fmt.Printf("last sync: %s\n", formatMillis(health.LastSync))
		fmt.Printf("last full: %s\n", formatMillis(health.LastFull))
		if health.ViewHash != nil {
			fmt.Printf("view hash: %s\n", *health.ViewHash)
		}
		return nil
	},
}

func formatMillis(ms *int64) string {
	if ms == nil {
		return "never"
	}
	return time.UnixMilli(*ms).Local().Format(time.RFC1123)
}

func init() {
	syncCmd.Flags().Bool("full", false, "force a full resync (replace the entire cache)")
}
