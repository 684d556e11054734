package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, prep func(*http.Request), handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(opt))
	r.GET("/x", handler)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := serveSecurity(t, SecurityOptions{}, nil, func(c *gin.Context) { c.Status(http.StatusOK) })
	h := w.Header()
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := h.Get(k); got != want {
			t.Fatalf("%s = %q; want %q", k, got, want)
		}
	}
	if h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" || h.Get("Permissions-Policy") != "" {
		t.Fatalf("optional headers leaked: %v", h)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != requestIDHeader {
		t.Fatalf("expose = %q", got)
	}
}

func TestSecurityHeaders_HandlerCacheControlWins(t *testing.T) {
	w := serveSecurity(t, SecurityOptions{}, nil, func(c *gin.Context) {
		c.Header("Cache-Control", "public, no-cache")
		c.Status(http.StatusOK)
	})
	if got := w.Header().Get("Cache-Control"); got != "public, no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
}

func TestSecurityHeaders_NoStorePolicyAndHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}

	w := serveSecurity(t, opt, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, func(c *gin.Context) { c.Status(http.StatusOK) })
	h := w.Header()
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %v", h)
	}
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %v", h)
	}
	if got := h.Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=3600;") {
		t.Fatalf("HSTS = %q", got)
	}

	w = serveSecurity(t, opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, func(c *gin.Context) { c.Status(http.StatusOK) })
	if !strings.Contains(w.Header().Get("Strict-Transport-Security"), "max-age=3600") {
		t.Fatal("HSTS expected behind a TLS-terminating proxy")
	}

	w = serveSecurity(t, opt, nil, func(c *gin.Context) { c.Status(http.StatusOK) })
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}
}

func TestExposeHeader_AppendsOnce(t *testing.T) {
	h := http.Header{}
	exposeHeader(h, requestIDHeader)
	if h.Get("Access-Control-Expose-Headers") != "" {
		t.Fatal("nothing to expose without the header")
	}
	h.Set(requestIDHeader, "rid")
	h.Set("Access-Control-Expose-Headers", "ETag")
	exposeHeader(h, requestIDHeader)
	exposeHeader(h, requestIDHeader)
	if got := h.Get("Access-Control-Expose-Headers"); got != "ETag, "+requestIDHeader {
		t.Fatalf("expose = %q", got)
	}
}
