// Package config loads server configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Airtable AirtableConfig
	CSV      CSVConfig
	Sync     SyncConfig
	Storage  StorageConfig
	UI       UIConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// AuthToken, when set, requires bearer auth on the data endpoints.
	AuthToken string
}

type AirtableConfig struct {
	BaseID string
	Table  string
	Token  string
	View   string
	Fields []string
}

// CSVConfig holds the shared-export URL. A non-empty URL switches the server
// into CSV mode; blank means Airtable mode.
type CSVConfig struct {
	URL string
}

type SyncConfig struct {
	TTL                time.Duration
	FullResyncInterval time.Duration
}

type StorageConfig struct {
	DataDir string
}

type UIConfig struct {
	PublicDir   string
	GmapsAPIKey string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 5174},
		Airtable: AirtableConfig{
			Table: "MIPP",
		},
		Sync: SyncConfig{
			TTL:                10 * time.Minute,
			FullResyncInterval: 24 * time.Hour,
		},
		Storage: StorageConfig{DataDir: "data"},
		UI:      UIConfig{PublicDir: "public"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads configuration from a .env file (if present) and the
// environment, then validates it.
func Load() (Config, error) {
	// Missing .env is fine; production deployments use real env vars.
	_ = godotenv.Load()
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	cfg.Server.AuthToken = getenv("API_AUTH_TOKEN")

	if v := getenv("AIRTABLE_BASE_ID"); v != "" {
		cfg.Airtable.BaseID = v
	}
	if v := getenv("AIRTABLE_TABLE_NAME"); v != "" {
		cfg.Airtable.Table = v
	}
	if v := getenv("AIRTABLE_API_TOKEN"); v != "" {
		cfg.Airtable.Token = v
	}
	if v := getenv("AIRTABLE_VIEW_NAME"); v != "" {
		cfg.Airtable.View = v
	}
	if v := getenv("AIRTABLE_FIELDS"); v != "" {
		cfg.Airtable.Fields = splitList(v)
	}

	cfg.CSV.URL = strings.TrimSpace(getenv("AIRTABLE_SHARED_CSV_URL"))

	if v := getenv("SYNC_TTL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_TTL_MS %q: %w", v, err)
		}
		cfg.Sync.TTL = time.Duration(ms) * time.Millisecond
	}
	if v := getenv("FULL_RESYNC_HOURS"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FULL_RESYNC_HOURS %q: %w", v, err)
		}
		cfg.Sync.FullResyncInterval = time.Duration(h) * time.Hour
	}

	if v := getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("PUBLIC_DIR"); v != "" {
		cfg.UI.PublicDir = v
	}
	cfg.UI.GmapsAPIKey = getenv("GMAPS_API_KEY")
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Mode reports the active source kind: "csv" when a shared CSV URL is
// configured, "airtable" otherwise.
func (c Config) Mode() string {
	if c.CSV.URL != "" {
		return "csv"
	}
	return "airtable"
}

func (c Config) validate() error {
	if c.Mode() == "airtable" {
		if c.Airtable.Token == "" {
			return fmt.Errorf("AIRTABLE_API_TOKEN is required in airtable mode (or set AIRTABLE_SHARED_CSV_URL for CSV mode)")
		}
		if c.Airtable.BaseID == "" {
			return fmt.Errorf("AIRTABLE_BASE_ID is required in airtable mode")
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
