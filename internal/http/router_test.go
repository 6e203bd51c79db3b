package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dukahub/go-followup-backend/internal/config"
	"github.com/dukahub/go-followup-backend/internal/domain"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.FollowupRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		APIBasePath: "/api/v1",
		MaxMessages: 4,
		WhatsApp: config.WhatsAppConfig{
			DefaultCountryCode:   "254",
			LocalLengthThreshold: 9,
		},
		StoreBaseURL: "https://shop.example",
		// Generous limits so the stack never throttles tests.
		RateRPS:   1000,
		RateBurst: 1000,
		Security: config.SecurityConfig{
			HSTSMaxAge: time.Hour,
		},
		OTEL: config.OTELConfig{ServiceName: "followup-test"},
	}

	r := gin.New()
	RegisterRoutes(r, db, cfg)
	return r
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestRouter_FallbackEnvelopes(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("unknown route body: %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("fallback lost request id")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method fallback: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"method_not_allowed"`) {
		t.Fatalf("method fallback body: %s", w.Body.String())
	}
}

func TestRouter_CORSDefaultAllowsAll(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q", got)
	}
}

// Exercises the full wired stack: track an order, message it to the cap,
// reconcile a comment, and read back the analytics.
func TestRouter_EndToEndLifecycle(t *testing.T) {
	r := newRouter(t)

	post := func(path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatalf("encode: %v", err)
			}
		}
		req := httptest.NewRequest("POST", path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// 1) Order completes.
	w := post("/api/v1/events/order-completed", map[string]any{
		"order_id":              101,
		"billing_email":         "jane@example.com",
		"billing_phone":         "0712345678",
		"line_item_product_ids": []int64{5},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("order event: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Record struct {
			ID uint `json:"id"`
		} `json:"record"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// 2) Staff send prompts up to the cap.
	msgPath := fmt.Sprintf("/api/v1/followups/%d/messages", created.Record.ID)
	for i := 0; i < 4; i++ {
		if w := post(msgPath, nil); w.Code != http.StatusOK {
			t.Fatalf("send %d: %d %s", i+1, w.Code, w.Body.String())
		}
	}
	if w := post(msgPath, nil); w.Code != http.StatusConflict {
		t.Fatalf("capped send: %d", w.Code)
	}

	// 3) The customer reviews the product.
	w = post("/api/v1/events/comment", map[string]any{
		"comment_post_id":      5,
		"comment_post_type":    "product",
		"comment_author_email": "jane@example.com",
	})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"matched":1`) {
		t.Fatalf("comment event: %d %s", w.Code, w.Body.String())
	}

	// 4) Dashboard shows full conversion.
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/api/v1/followups/analytics", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("analytics: %d", w2.Code)
	}
	if !strings.Contains(w2.Body.String(), `"conversion_rate":100`) {
		t.Fatalf("analytics body: %s", w2.Body.String())
	}
}
