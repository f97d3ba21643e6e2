// Package api exposes the HTTP surface: project data with lazy sync, health
// reporting, a push-update stream, and the browser boot config.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kwhalen/projectmap/internal/notify"
	"github.com/kwhalen/projectmap/internal/record"
	"github.com/kwhalen/projectmap/internal/storage"
	"github.com/kwhalen/projectmap/internal/syncer"
)

// keepAliveInterval paces SSE comment pings so proxies keep the stream open.
const keepAliveInterval = 15 * time.Second

// Syncer is the sync engine capability the handlers need.
type Syncer interface {
	SyncIfStale(ctx context.Context, opts syncer.Options) (syncer.Result, error)
}

// Deps wires the handler set.
type Deps struct {
	Store    *storage.Store
	Engine   Syncer
	Hub      *notify.Hub
	Mode     string // "airtable" | "csv"
	GmapsKey string
	// AuthToken, when set, requires bearer auth on the data endpoints.
	// Health and boot config stay open for probes and the browser shell.
	AuthToken string
	// PublicDir holds the static browser bundle; empty disables static serving.
	PublicDir string
}

// NewHandler builds the chi router for the full HTTP surface.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		if deps.AuthToken != "" {
			r.Use(BearerAuth(deps.AuthToken))
		}
		r.Get("/api/projects", handleProjects(deps))
		r.Get("/api/stream", handleStream(deps))
	})
	r.Get("/api/health", handleHealth(deps))
	r.Get("/api/config", handleConfig(deps))

	r.NotFound(staticHandler(deps.PublicDir))

	return r
}

type projectsResponse struct {
	Source  string           `json:"source"`
	Count   int              `json:"count"`
	Records []record.Project `json:"records"`
	Sync    syncer.Result    `json:"sync"`
}

func handleProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := syncer.Options{
			ForceFull: r.URL.Query().Get("full") == "1",
			ForceSync: r.URL.Query().Get("force") == "1",
		}

		// Fetch failures are reported inside the result and the cache keeps
		// serving; only a broken store is a request failure.
		res, err := deps.Engine.SyncIfStale(r.Context(), opts)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "persistence_error", "sync metadata unavailable: %v", err)
			return
		}

		records, err := deps.Store.AllProjectsSortedByName()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "persistence_error", "reading cache: %v", err)
			return
		}
		if records == nil {
			records = []record.Project{}
		}

		w.Header().Set("X-Mode", strings.ToUpper(deps.Mode))
		w.Header().Set("X-Sync", syncHeader(res))
		writeJSON(w, http.StatusOK, projectsResponse{
			Source:  "sqlite",
			Count:   len(records),
			Records: records,
			Sync:    res,
		})
	}
}

func syncHeader(res syncer.Result) string {
	switch {
	case res.Synced && res.Full:
		return "FULL"
	case res.Synced:
		return "INCR"
	default:
		return "HIT"
	}
}

type healthResponse struct {
	OK       bool    `json:"ok"`
	Mode     string  `json:"mode"`
	LastSync *int64  `json:"lastSync"`
	LastFull *int64  `json:"lastFull"`
	ViewHash *string `json:"viewHash"`
	Now      int64   `json:"now"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			OK:       true,
			Mode:     deps.Mode,
			LastSync: metaMillis(deps.Store, syncer.MetaLastSync),
			LastFull: metaMillis(deps.Store, syncer.MetaLastFullResync),
			Now:      time.Now().UnixMilli(),
		}
		if v, err := deps.Store.GetMeta(syncer.MetaViewHash); err == nil {
			resp.ViewHash = &v
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func metaMillis(store *storage.Store, key string) *int64 {
	v, err := store.GetMeta(key)
	if err != nil {
		return nil
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return nil
	}
	return &n
}

// handleStream serves the push-update stream as Server-Sent Events. Each
// change notification becomes one named "projects-updated" event with an
// empty payload; the connection stays open until the client goes away.
func handleStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // nginx: disable buffering
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		id, events := deps.Hub.Subscribe()
		defer deps.Hub.Unsubscribe(id)

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case _, open := <-events:
				if !open {
					return
				}
				fmt.Fprint(w, "event: projects-updated\ndata: {}\n\n")
				flusher.Flush()
			}
		}
	}
}

func handleConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"GMAPS_API_KEY": deps.GmapsKey})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
