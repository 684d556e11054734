package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndFallsBackToRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/entries/:id", func(c *gin.Context) { c.String(http.StatusOK, "entry") })
	r.GET("/api/v1/entries", func(c *gin.Context) { c.Status(http.StatusNotModified) })

	baseEntry := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/entries/:id", "200"))
	base304 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/entries", "304"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nowhere", "404"))

	for _, p := range []string{"/api/v1/entries/202406150930", "/api/v1/entries/202406150931", "/api/v1/entries", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/entries/:id", "200")); got != baseEntry+2 {
		t.Fatalf("entry counter = %v; want %v", got, baseEntry+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/entries", "304")); got != base304+1 {
		t.Fatalf("304 counter = %v; want %v", got, base304+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nowhere", "404")); got != base404+1 {
		t.Fatalf("404 fallback counter = %v; want %v", got, base404+1)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v; want 0", v)
	}
}
