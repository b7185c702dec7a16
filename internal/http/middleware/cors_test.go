package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSHeaders_PreflightAnyPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSHeaders(CORSOptions{}))
	r.GET("/api/items", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/items", "/api/items/7", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, path, nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("OPTIONS %s: status = %d, want 204", path, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Fatalf("OPTIONS %s: body should be empty, got %q", path, w.Body.String())
		}
		h := w.Header()
		if h.Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("allow-origin = %q", h.Get("Access-Control-Allow-Origin"))
		}
		if h.Get("Access-Control-Allow-Methods") != "GET, POST, PUT, DELETE, OPTIONS" {
			t.Fatalf("allow-methods = %q", h.Get("Access-Control-Allow-Methods"))
		}
		if h.Get("Access-Control-Allow-Headers") != "Content-Type, Authorization, Idempotency-Key, X-Request-ID" {
			t.Fatalf("allow-headers = %q", h.Get("Access-Control-Allow-Headers"))
		}
	}
}

func TestCORSHeaders_PresentOnErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSHeaders(CORSOptions{}))
	r.GET("/boom", func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})

	for _, path := range []string{"/boom", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("GET %s (%d): CORS headers missing", path, w.Code)
		}
	}
}

func TestCORSHeaders_AllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSHeaders(CORSOptions{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET"},
	}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(origin string) http.Header {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", origin)
		r.ServeHTTP(w, req)
		return w.Header()
	}

	h := send("https://app.example.com")
	if h.Get("Access-Control-Allow-Origin") != "https://app.example.com" || h.Get("Vary") != "Origin" {
		t.Fatalf("listed origin not echoed: %#v", h)
	}
	if h.Get("Access-Control-Allow-Methods") != "GET" {
		t.Fatalf("custom methods ignored: %q", h.Get("Access-Control-Allow-Methods"))
	}

	h = send("https://evil.example.com")
	if h.Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unlisted origin must not be allowed: %#v", h)
	}
}
