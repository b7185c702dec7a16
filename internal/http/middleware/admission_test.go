package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-items-api/internal/ratelimit"
)

// failingStore errors on every call.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("store down")
}
func (failingStore) Put(context.Context, string, int64, time.Duration) error {
	return errors.New("store down")
}

func newAdmissionRouter(ctrl *ratelimit.Controller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), ClientIdentity("X-Forwarded-For"), Admission(ctrl, AdmissionOptions{}))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/items", ok)
	r.POST("/items", ok)
	r.DELETE("/items", ok)
	return r
}

func do(r http.Handler, method, client string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/items", nil)
	if client != "" {
		req.Header.Set("X-Forwarded-For", client)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAdmission_RejectsAfterBudget(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_400)
	ctrl := ratelimit.NewController(ratelimit.NewMemoryStore(), time.Second, 2,
		ratelimit.WithNow(func() time.Time { return now }))
	r := newAdmissionRouter(ctrl)

	for i, wantRemaining := range []string{"1", "0"} {
		w := do(r, http.MethodPost, "1.2.3.4")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Fatalf("request %d: remaining = %q, want %q", i, got, wantRemaining)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Fatalf("limit header = %q", got)
		}
	}

	w := do(r, http.MethodPost, "1.2.3.4")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third write: status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q, want 1", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body["error"] != "Too many requests" || body["code"] != CodeRateLimited {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["retryAfter"].(float64) != 1 || body["retryAfterMs"].(float64) != 600 {
		t.Fatalf("unexpected retry hints: %v", body)
	}
	if body["request_id"] == "" {
		t.Fatalf("missing request_id: %v", body)
	}

	// Another client has its own budget.
	if w := do(r, http.MethodPost, "5.6.7.8"); w.Code != http.StatusOK {
		t.Fatalf("other client: status = %d", w.Code)
	}
}

func TestAdmission_ReadsAreNotCounted(t *testing.T) {
	ctrl := ratelimit.NewController(ratelimit.NewMemoryStore(), time.Minute, 1)
	r := newAdmissionRouter(ctrl)

	for i := 0; i < 5; i++ {
		w := do(r, http.MethodGet, "1.2.3.4")
		if w.Code != http.StatusOK {
			t.Fatalf("GET %d: status = %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("reads must not carry admission headers")
		}
	}
	if w := do(r, http.MethodDelete, "1.2.3.4"); w.Code != http.StatusOK {
		t.Fatalf("first write after reads: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "1.2.3.4"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: status = %d, want 429", w.Code)
	}
}

func TestAdmission_MissingHeaderSharesAnonymousBucket(t *testing.T) {
	ctrl := ratelimit.NewController(ratelimit.NewMemoryStore(), time.Minute, 1)
	r := newAdmissionRouter(ctrl)

	if w := do(r, http.MethodPost, ""); w.Code != http.StatusOK {
		t.Fatalf("first anonymous write: %d", w.Code)
	}
	if w := do(r, http.MethodPost, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second anonymous write: %d, want 429", w.Code)
	}
}

func TestAdmission_FailOpen(t *testing.T) {
	buf := withCapturedLogger(t)
	ctrl := ratelimit.NewController(failingStore{}, time.Second, 1)
	r := newAdmissionRouter(ctrl)

	for i := 0; i < 3; i++ {
		if w := do(r, http.MethodPost, "1.2.3.4"); w.Code != http.StatusOK {
			t.Fatalf("write %d: status = %d, want 200 (fail-open)", i, w.Code)
		}
	}
	if n := strings.Count(buf.String(), "admission store unavailable"); n != 1 {
		t.Fatalf("fail-open warnings = %d, want 1 (throttled): %s", n, buf.String())
	}
}

func TestAdmission_ReplayBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := ratelimit.NewController(ratelimit.NewMemoryStore(), time.Minute, 1)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") == "1" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	r.Use(Admission(ctrl, AdmissionOptions{}))
	r.POST("/items", func(c *gin.Context) {
		_, decided := AdmissionFrom(c)
		c.JSON(http.StatusOK, gin.H{"decided": decided})
	})

	send := func(replay bool) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/items", nil)
		if replay {
			req.Header.Set("X-Replay", "1")
		}
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(false); w.Code != http.StatusOK || w.Body.String() != `{"decided":true}` {
		t.Fatalf("first write: %d %s", w.Code, w.Body.String())
	}
	if w := send(true); w.Code != http.StatusOK || w.Body.String() != `{"decided":false}` {
		t.Fatalf("replay should bypass admission: %d %s", w.Code, w.Body.String())
	}
	if w := send(false); w.Code != http.StatusTooManyRequests {
		t.Fatalf("budget exhausted: %d", w.Code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		time.Millisecond:        1,
		600 * time.Millisecond:  1,
		time.Second:             1,
		1001 * time.Millisecond: 2,
		59 * time.Second:        59,
	}
	for in, want := range cases {
		if got := retryAfterSeconds(in); got != want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", in, got, want)
		}
	}
}
