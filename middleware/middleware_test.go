package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c)})
	})
	return r
}

func TestIdentityFromCookie(t *testing.T) {
	r := newRouter(Identity("standardgpt_auth"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.AddCookie(&http.Cookie{Name: "standardgpt_auth", Value: "user-42"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["user"] != "user-42" {
		t.Errorf("user = %q", body["user"])
	}
}

func TestIdentityHeaderFallback(t *testing.T) {
	r := newRouter(Identity("standardgpt_auth"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-User-ID", "api-client")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"api-client"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestIdentityAnonymousDefault(t *testing.T) {
	r := newRouter(Identity("standardgpt_auth"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"anonymous"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRateLimiterExhaustion(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Close()
	r := newRouter(rl.Middleware())

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
		if w.Code == http.StatusTooManyRequests {
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal 429 body: %v", err)
			}
			if _, ok := body["retry_after"]; !ok {
				t.Error("429 body missing retry_after")
			}
			if w.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After header")
			}
		}
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests should pass: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request should be limited: %v", statuses)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()
	r := newRouter(rl.Middleware())

	for i, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d from fresh IP limited: %d", i, w.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(SecurityHeaders())
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
