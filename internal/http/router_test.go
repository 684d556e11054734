package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-travel-register/internal/config"
	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/repo"
)

var routerNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		LogRedact:   true,
		BodyLimit:   1 << 20,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Register: config.RegisterConfig{
			AccountSID:  "AC123",
			Number:      "+15550100",
			FragmentTTL: 24 * time.Hour,
			ReceiptTTL:  48 * time.Hour,
			ExportLimit: 100,
		},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svcs := NewServices(newTestDB(t), cfg, testclock.NewClock(routerNow))
	RegisterRoutes(r, svcs, cfg)
	return r, svcs
}

func postSMS(r *gin.Engine, sid, account, body string) *httptest.ResponseRecorder {
	form := url.Values{
		"AccountSid": {account},
		"From":       {"+33600000000"},
		"To":         {"+15550100"},
		"Body":       {body},
		"MessageSid": {sid},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const helloWorld = "12311242#42.123,-2.456#20#766#Hello world!"

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", w.Header())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("NoRoute = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/register/entries", nil))
	if w.Code != http.StatusMethodNotAllowed || !strings.Contains(w.Body.String(), "method_not_allowed") {
		t.Fatalf("NoMethod = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/register/entries", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("base path not honoured: %d", w.Code)
	}
}

func TestRegisterRoutes_SwaggerToggle(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled should 404, got %d", w.Code)
	}

	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ = newTestRouter(t, cfg)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("swagger enabled = %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// An SMS travels through replay detection, rate limiting, the ingest
// pipeline, and lands in the register listing.
func TestPipeline_SMSToListing(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := postSMS(r, "SM0001", "AC123", helloWorld)
	if w.Code != http.StatusOK {
		t.Fatalf("sms = %d %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/xml") || w.Body.String() != "<Response></Response>" {
		t.Fatalf("expected empty TwiML, got %q %q", w.Header().Get("Content-Type"), w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/register/entries", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if w.Header().Get("Last-Modified") == "" {
		t.Fatalf("list should carry Last-Modified")
	}
	var body struct {
		Count   int64             `json:"count"`
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/register/export", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Hello world!") {
		t.Fatalf("export = %d %q", w.Code, w.Body.String())
	}
}

func TestPipeline_ReplayedMessageSidIsAcknowledgedOnly(t *testing.T) {
	r, svcs := newTestRouter(t, testConfig())

	if w := postSMS(r, "SM0002", "AC123", helloWorld); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	// Drop the row; a reprocessed replay would bring it back.
	if err := svcs.DB.Where("1 = 1").Delete(&domain.RegisterEntry{}).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}

	w := postSMS(r, "SM0002", "AC123", helloWorld)
	if w.Code != http.StatusOK || w.Body.String() != "<Response></Response>" {
		t.Fatalf("replay = %d %q", w.Code, w.Body.String())
	}
	var n int64
	svcs.DB.Model(&domain.RegisterEntry{}).Count(&n)
	if n != 0 {
		t.Fatalf("replay was reprocessed: %d rows", n)
	}
}

func TestPipeline_RejectsForeignAccount(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	w := postSMS(r, "SM0003", "AC999", helloWorld)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", w.Code, w.Body.String())
	}
}

func TestPipeline_BadMessageSidRejected(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	w := postSMS(r, "bad sid!", "AC123", helloWorld)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
		t.Fatalf("expected 400 bad_idempotency_key, got %d %s", w.Code, w.Body.String())
	}
}

func TestNewServices_AppliesRegisterConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Register.ExportLimit = 7
	cfg.Register.FragmentTTL = 2 * time.Hour
	svcs := NewServices(newTestDB(t), cfg, nil)

	if svcs.Register.ExportLimit != 7 {
		t.Fatalf("export limit = %d", svcs.Register.ExportLimit)
	}
	if svcs.Assembler.TTL() != 2*time.Hour {
		t.Fatalf("fragment ttl = %v", svcs.Assembler.TTL())
	}
	if svcs.Ingest.AccountSID != "AC123" || svcs.Ingest.Number != "+15550100" {
		t.Fatalf("ingest channel not configured: %+v", svcs.Ingest)
	}
	if svcs.Clock == nil {
		t.Fatalf("nil clock should default to wall clock")
	}
}

func Test_receiptLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	lookup := receiptLookup(db)

	if ok, err := lookup(ctx, "sms", "SM1", routerNow); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
	if _, err := repo.CreateReceipt(ctx, db, "sms", "SM1", "id", domain.ReceiptStored, routerNow, time.Hour); err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if ok, err := lookup(ctx, "sms", "SM1", routerNow); !ok || err != nil {
		t.Fatalf("hit: ok=%v err=%v", ok, err)
	}
	if ok, _ := lookup(ctx, "sms", "SM1", routerNow.Add(2*time.Hour)); ok {
		t.Fatalf("expired receipt should miss")
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if _, err := lookup(ctx, "sms", "SM2", routerNow); err == nil {
		t.Fatalf("expected error on closed DB")
	}
}

func Test_entryRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	var shim entryRepoShim

	msg := "hi"
	e := &domain.RegisterEntry{ID: "2024-01-02 03:04:00", Message: msg, Source: domain.SourceBatch}
	if created, err := shim.UpsertEntry(ctx, db, e); err != nil || !created {
		t.Fatalf("UpsertEntry: created=%v err=%v", created, err)
	}
	if got, err := shim.GetEntry(ctx, db, e.ID); err != nil || got.Message != msg {
		t.Fatalf("GetEntry: %v %v", got, err)
	}
	if n, err := shim.CountEntries(ctx, db, domain.EntryFilter{}); err != nil || n != 1 {
		t.Fatalf("CountEntries: %d %v", n, err)
	}
	if list, err := shim.ListEntriesPage(ctx, db, domain.EntryFilter{}, 0, 10); err != nil || len(list) != 1 {
		t.Fatalf("ListEntriesPage: %d %v", len(list), err)
	}
	if err := shim.DeleteEntry(ctx, db, e.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := shim.GetEntry(ctx, db, e.ID); !repo.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
