package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiterStoreAllow(t *testing.T) {
	store := newLimiterStore(2, time.Minute)
	now := time.Now()

	if !store.allow("a", now) || !store.allow("a", now) {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if store.allow("a", now) {
		t.Fatal("third request in the same instant should be limited")
	}
	if !store.allow("b", now) {
		t.Fatal("limits must be per key")
	}
}

func TestLimiterStoreEvictIdle(t *testing.T) {
	store := newLimiterStore(10, time.Minute)
	now := time.Now()
	store.allow("old", now.Add(-10*time.Minute))
	store.allow("fresh", now)

	store.evictIdle(now, 3*time.Minute)

	if _, ok := store.visitors["old"]; ok {
		t.Error("idle visitor was not evicted")
	}
	if _, ok := store.visitors["fresh"]; !ok {
		t.Error("active visitor was evicted")
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://learn.example.com"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", http.MethodGet, "https://learn.example.com", http.StatusOK, "https://learn.example.com"},
		{"unknown origin", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://learn.example.com", http.StatusNoContent, "https://learn.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}
