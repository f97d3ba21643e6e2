package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kwhalen/projectmap/internal/notify"
	"github.com/kwhalen/projectmap/internal/storage"
)

func TestBearerAuthGate(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewHandler(Deps{
		Store:     store,
		Engine:    &stubSyncer{},
		Hub:       notify.NewHub(),
		Mode:      "airtable",
		AuthToken: "secret-token",
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"projects without token", "/api/projects", "", http.StatusUnauthorized},
		{"projects wrong token", "/api/projects", "Bearer nope", http.StatusUnauthorized},
		{"projects malformed header", "/api/projects", "secret-token", http.StatusUnauthorized},
		{"projects correct token", "/api/projects", "Bearer secret-token", http.StatusOK},
		{"health stays open", "/api/health", "", http.StatusOK},
		{"config stays open", "/api/config", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestNoTokenMeansOpenAPI(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewHandler(Deps{
		Store:  store,
		Engine: &stubSyncer{},
		Hub:    notify.NewHub(),
		Mode:   "csv",
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no token configured", rr.Code)
	}
}
