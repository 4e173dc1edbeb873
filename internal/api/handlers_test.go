package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"okx-trading-bot/internal/bot"
	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/events"
	"okx-trading-bot/internal/logging"
)

type fakeBot struct {
	running bool
	mode    string
	symbol  string
}

func (f *fakeBot) Start(ctx context.Context) { f.running = true }
func (f *fakeBot) Stop()              { f.running = false }
func (f *fakeBot) IsRunning() bool    { return f.running }
func (f *fakeBot) Status() bot.Status {
	return bot.Status{Running: f.running, Mode: f.mode, Symbol: f.symbol}
}
func (f *fakeBot) Summary() engine.Metrics { return engine.Metrics{StartingEquity: 10000} }
func (f *fakeBot) Symbol() string          { return f.symbol }
func (f *fakeBot) SetSymbol(sym string)    { f.symbol = sym }
func (f *fakeBot) Mode() string            { return f.mode }
func (f *fakeBot) SetMode(mode string) bool {
	if mode != bot.ModeAuto && mode != bot.ModeObserve {
		return false
	}
	f.mode = mode
	return true
}

func (f *fakeBot) Settings() bot.Settings {
	return bot.Settings{Symbol: f.symbol, Mode: f.mode}
}

func (f *fakeBot) ApplySettings(s bot.Settings) error {
	if s.Mode != "" && !f.SetMode(s.Mode) {
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if s.Symbol != "" {
		f.symbol = s.Symbol
	}
	return nil
}

func testServer(b *fakeBot) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	s := &Server{
		router:        router,
		botAPI:        b,
		rateLimiter:   NewRateLimiter(1000, time.Minute),
		logger:        logging.New(&logging.Config{Level: "ERROR"}),
		notifications: events.NewHistory(10),
	}

	router.GET("/api/ping", s.handlePing)
	router.GET("/api/bot/status", s.handleBotStatus)
	router.POST("/api/bot/start", s.handleBotStart)
	router.POST("/api/bot/stop", s.handleBotStop)
	router.GET("/api/trading_mode", s.handleGetTradingMode)
	router.POST("/api/trading_mode", s.handleSetTradingMode)
	router.GET("/api/symbol", s.handleGetSymbol)
	router.POST("/api/symbol", s.handleSetSymbol)
	router.GET("/api/summary", s.handleSummary)
	router.GET("/api/config", s.handleGetConfig)
	router.POST("/api/config", s.handleUpdateConfig)
	router.GET("/api/notifications", s.handleNotifications)
	router.POST("/api/notifications/clear", s.handleClearNotifications)
	return s, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	_, router := testServer(&fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"})

	w := doJSON(t, router, http.MethodGet, "/api/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBotStartStop(t *testing.T) {
	b := &fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"}
	_, router := testServer(b)

	if w := doJSON(t, router, http.MethodPost, "/api/bot/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}
	if !b.running {
		t.Fatal("bot should be running after start")
	}
	if w := doJSON(t, router, http.MethodPost, "/api/bot/start", nil); w.Code != http.StatusConflict {
		t.Errorf("double start: expected 409, got %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/bot/stop", nil); w.Code != http.StatusOK {
		t.Errorf("stop: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/bot/stop", nil); w.Code != http.StatusConflict {
		t.Errorf("double stop: expected 409, got %d", w.Code)
	}
}

func TestSetTradingMode(t *testing.T) {
	b := &fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"}
	_, router := testServer(b)

	w := doJSON(t, router, http.MethodPost, "/api/trading_mode", gin.H{"mode": bot.ModeObserve})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if b.mode != bot.ModeObserve {
		t.Errorf("mode not applied: %q", b.mode)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/trading_mode", gin.H{"mode": "yolo"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown mode: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/trading_mode", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing mode: expected 400, got %d", w.Code)
	}
}

func TestSetSymbol(t *testing.T) {
	b := &fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"}
	_, router := testServer(b)

	w := doJSON(t, router, http.MethodPost, "/api/symbol", gin.H{"symbol": "BTC-USDT-SWAP"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if b.symbol != "BTC-USDT-SWAP" {
		t.Errorf("symbol not applied: %q", b.symbol)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/symbol", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing symbol: expected 400, got %d", w.Code)
	}
}

func TestSummary(t *testing.T) {
	_, router := testServer(&fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"})

	w := doJSON(t, router, http.MethodGet, "/api/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Data engine.Metrics `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.StartingEquity != 10000 {
		t.Errorf("unexpected summary payload: %+v", body.Data)
	}
}

func TestUpdateConfig(t *testing.T) {
	b := &fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"}
	_, router := testServer(b)

	w := doJSON(t, router, http.MethodPost, "/api/config", gin.H{"mode": bot.ModeObserve, "symbol": "BTC-USDT-SWAP"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if b.mode != bot.ModeObserve || b.symbol != "BTC-USDT-SWAP" {
		t.Errorf("settings not applied: mode=%q symbol=%q", b.mode, b.symbol)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/config", gin.H{"mode": "yolo"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid settings: expected 400, got %d", w.Code)
	}
}

func TestNotifications(t *testing.T) {
	s, router := testServer(&fakeBot{mode: bot.ModeAuto, symbol: "ETH-USDT-SWAP"})

	s.notifications.Record(events.Event{Type: events.EventPriceUpdate, Data: map[string]interface{}{"price": 3500.0}})
	s.notifications.Record(events.Event{Type: events.EventDecision, Data: map[string]interface{}{"action": "hold"}})

	w := doJSON(t, router, http.MethodGet, "/api/notifications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data []events.Event `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Data) != 2 || body.Data[0].Type != events.EventDecision {
		t.Errorf("expected 2 notifications newest first, got %+v", body.Data)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/notifications/clear", nil); w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", w.Code)
	}
	if got := s.notifications.Recent(0); len(got) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(got))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	if !rl.Allow("/api/summary") || !rl.Allow("/api/summary") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("/api/summary") {
		t.Error("third request within the window should be rejected")
	}
	if !rl.Allow("/api/ping") {
		t.Error("other endpoints should have their own budget")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("k") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("k") {
		t.Fatal("second immediate request should be rejected")
	}
	time.Sleep(15 * time.Millisecond)
	if !rl.Allow("k") {
		t.Error("request after window expiry should pass")
	}
}
