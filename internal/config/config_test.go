package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDefaults(t *testing.T) {
	cfg, err := loadFromEnv(env(map[string]string{
		"AIRTABLE_API_TOKEN": "pat123",
		"AIRTABLE_BASE_ID":   "appXYZ",
	}))
	if err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}

	if cfg.Server.Port != 5174 {
		t.Errorf("Port = %d, want 5174", cfg.Server.Port)
	}
	if cfg.Airtable.Table != "MIPP" {
		t.Errorf("Table = %q, want MIPP", cfg.Airtable.Table)
	}
	if cfg.Sync.TTL != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", cfg.Sync.TTL)
	}
	if cfg.Sync.FullResyncInterval != 24*time.Hour {
		t.Errorf("FullResyncInterval = %v, want 24h", cfg.Sync.FullResyncInterval)
	}
	if cfg.Storage.DataDir != "data" || cfg.UI.PublicDir != "public" {
		t.Errorf("paths = %q, %q", cfg.Storage.DataDir, cfg.UI.PublicDir)
	}
	if cfg.Mode() != "airtable" {
		t.Errorf("Mode = %q, want airtable", cfg.Mode())
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := loadFromEnv(env(map[string]string{
		"PORT":                "8080",
		"API_AUTH_TOKEN":      "hunter2",
		"AIRTABLE_API_TOKEN":  "pat123",
		"AIRTABLE_BASE_ID":    "appXYZ",
		"AIRTABLE_TABLE_NAME": "Projects",
		"AIRTABLE_VIEW_NAME":  "Public Map",
		"AIRTABLE_FIELDS":     "Project Name, Phase ,Address",
		"SYNC_TTL_MS":         "30000",
		"FULL_RESYNC_HOURS":   "6",
		"DATA_DIR":            "/var/lib/projectmap",
		"PUBLIC_DIR":          "dist",
		"GMAPS_API_KEY":       "maps-key",
		"LOG_LEVEL":           "debug",
	}))
	if err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "hunter2" {
		t.Errorf("AuthToken = %q", cfg.Server.AuthToken)
	}
	if cfg.Airtable.Table != "Projects" || cfg.Airtable.View != "Public Map" {
		t.Errorf("airtable = %+v", cfg.Airtable)
	}
	if want := []string{"Project Name", "Phase", "Address"}; !reflect.DeepEqual(cfg.Airtable.Fields, want) {
		t.Errorf("Fields = %v, want %v", cfg.Airtable.Fields, want)
	}
	if cfg.Sync.TTL != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", cfg.Sync.TTL)
	}
	if cfg.Sync.FullResyncInterval != 6*time.Hour {
		t.Errorf("FullResyncInterval = %v, want 6h", cfg.Sync.FullResyncInterval)
	}
	if cfg.Storage.DataDir != "/var/lib/projectmap" || cfg.UI.PublicDir != "dist" {
		t.Errorf("paths = %q, %q", cfg.Storage.DataDir, cfg.UI.PublicDir)
	}
	if cfg.UI.GmapsAPIKey != "maps-key" || cfg.Log.Level != "debug" {
		t.Errorf("ui/log = %+v, %+v", cfg.UI, cfg.Log)
	}
}

func TestCSVModeSkipsAirtableValidation(t *testing.T) {
	cfg, err := loadFromEnv(env(map[string]string{
		"AIRTABLE_SHARED_CSV_URL": " https://airtable.com/shr123.csv ",
	}))
	if err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}
	if cfg.Mode() != "csv" {
		t.Errorf("Mode = %q, want csv", cfg.Mode())
	}
	if cfg.CSV.URL != "https://airtable.com/shr123.csv" {
		t.Errorf("URL = %q, want trimmed", cfg.CSV.URL)
	}
}

func TestAirtableModeRequiresCredentials(t *testing.T) {
	_, err := loadFromEnv(env(map[string]string{}))
	if err == nil || !strings.Contains(err.Error(), "AIRTABLE_API_TOKEN") {
		t.Fatalf("err = %v, want token error", err)
	}

	_, err = loadFromEnv(env(map[string]string{"AIRTABLE_API_TOKEN": "pat123"}))
	if err == nil || !strings.Contains(err.Error(), "AIRTABLE_BASE_ID") {
		t.Fatalf("err = %v, want base id error", err)
	}
}

func TestInvalidNumbersRejected(t *testing.T) {
	for _, key := range []string{"PORT", "SYNC_TTL_MS", "FULL_RESYNC_HOURS"} {
		vars := map[string]string{
			"AIRTABLE_API_TOKEN": "pat123",
			"AIRTABLE_BASE_ID":   "appXYZ",
			key:                  "nope",
		}
		if _, err := loadFromEnv(env(vars)); err == nil {
			t.Errorf("%s=nope accepted, want error", key)
		}
	}
}
