package api

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"okx-trading-bot/internal/auth"
	"okx-trading-bot/internal/backtest"
	"okx-trading-bot/internal/bot"
	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/database"
)

// handleHealth returns server and dependency health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dbHealthy := s.repo.HealthCheck(ctx) == nil

	status := "healthy"
	code := http.StatusOK
	if !dbHealthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":   status,
		"database": dbHealthy,
	}
	if s.cache != nil {
		body["cache"] = s.cache.GetStats()
	}
	c.JSON(code, body)
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "password is required")
		return
	}

	token, err := s.authService.Login(req.Password)
	if err != nil {
		if err == auth.ErrBadCredentials {
			errorResponse(c, http.StatusUnauthorized, "bad credentials")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": s.authService.TokenDuration(),
	})
}

func (s *Server) handleBotStatus(c *gin.Context) {
	successResponse(c, s.botAPI.Status())
}

func (s *Server) handleBotStart(c *gin.Context) {
	if s.botAPI.IsRunning() {
		errorResponse(c, http.StatusConflict, "bot is already running")
		return
	}
	s.botAPI.Start(context.Background())
	successResponse(c, gin.H{"running": true})
}

func (s *Server) handleBotStop(c *gin.Context) {
	if !s.botAPI.IsRunning() {
		errorResponse(c, http.StatusConflict, "bot is not running")
		return
	}
	s.botAPI.Stop()
	successResponse(c, gin.H{"running": false})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	successResponse(c, s.botAPI.Settings())
}

// handleUpdateConfig applies a partial settings update; omitted fields keep
// their current values.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var settings bot.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid settings payload")
		return
	}
	if err := s.botAPI.ApplySettings(settings); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	successResponse(c, s.botAPI.Settings())
}

func (s *Server) handleGetTradingMode(c *gin.Context) {
	successResponse(c, gin.H{"mode": s.botAPI.Mode()})
}

func (s *Server) handleSetTradingMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "mode is required")
		return
	}
	if !s.botAPI.SetMode(req.Mode) {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	successResponse(c, gin.H{"mode": s.botAPI.Mode()})
}

func (s *Server) handleGetSymbol(c *gin.Context) {
	successResponse(c, gin.H{"symbol": s.botAPI.Symbol()})
}

func (s *Server) handleSetSymbol(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	s.botAPI.SetSymbol(req.Symbol)
	successResponse(c, gin.H{"symbol": s.botAPI.Symbol()})
}

func (s *Server) handleSummary(c *gin.Context) {
	successResponse(c, s.botAPI.Summary())
}

// handleLatestDecision serves the freshest decision, cache first.
func (s *Server) handleLatestDecision(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.botAPI.Symbol())

	if s.cache != nil {
		var rec database.DecisionRecord
		if err := s.cache.GetJSON(c.Request.Context(), cache.LatestDecisionKey(symbol), &rec); err == nil {
			successResponse(c, rec)
			return
		}
	}

	records, err := s.repo.GetRecentDecisions(c.Request.Context(), symbol, 1)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load decisions")
		return
	}
	if len(records) == 0 {
		errorResponse(c, http.StatusNotFound, "no decisions yet")
		return
	}
	successResponse(c, records[0])
}

func (s *Server) handleDecisionHistory(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.botAPI.Symbol())
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	records, total, err := s.repo.GetDecisionsPaginated(c.Request.Context(), symbol, page, pageSize)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load decision history")
		return
	}

	successResponse(c, gin.H{
		"decisions": records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// handleExportDecisions streams the full decision history as CSV.
func (s *Server) handleExportDecisions(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.botAPI.Symbol())

	records, err := s.repo.GetDecisionsAscending(c.Request.Context(), symbol)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load decisions")
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-decisions.csv", symbol))

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	w.Write([]string{"time", "symbol", "price", "action", "confidence", "position_size", "take_profit", "stop_loss", "executed", "reason"})
	for _, rec := range records {
		w.Write([]string{
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Symbol,
			strconv.FormatFloat(rec.Price, 'f', -1, 64),
			rec.Action,
			rec.Confidence,
			strconv.FormatFloat(rec.PositionSize, 'f', -1, 64),
			formatOptional(rec.TakeProfit),
			formatOptional(rec.StopLoss),
			strconv.FormatBool(rec.Executed),
			rec.Reason,
		})
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func (s *Server) handleClearDecisions(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.botAPI.Symbol())

	deleted, err := s.repo.ClearDecisions(c.Request.Context(), symbol)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to clear decision history")
		return
	}
	positions, err := s.repo.ClearSimPositions(c.Request.Context(), symbol)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to clear position history")
		return
	}

	if s.cache != nil {
		s.cache.Delete(c.Request.Context(), cache.LatestDecisionKey(symbol))
		s.cache.Delete(c.Request.Context(), cache.PositionKey(symbol))
	}

	successResponse(c, gin.H{
		"deleted_decisions": deleted,
		"deleted_positions": positions,
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.botAPI.Symbol())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}

	positions, err := s.repo.ListSimPositions(c.Request.Context(), symbol, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load positions")
		return
	}
	successResponse(c, positions)
}

func (s *Server) handleNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	successResponse(c, s.notifications.Recent(limit))
}

func (s *Server) handleClearNotifications(c *gin.Context) {
	successResponse(c, gin.H{"cleared": s.notifications.Clear()})
}

func (s *Server) handleRunBacktest(c *gin.Context) {
	var opts backtest.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid backtest options")
		return
	}
	if opts.Symbol == "" {
		opts.Symbol = s.botAPI.Symbol()
	}

	result, runID, err := s.backtester.Run(c.Request.Context(), opts)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	successResponse(c, gin.H{
		"run_id": runID,
		"result": result,
	})
}

func (s *Server) handleBacktestRuns(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.botAPI.Symbol())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}

	runs, err := s.repo.GetBacktestRuns(c.Request.Context(), symbol, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load backtest runs")
		return
	}
	successResponse(c, runs)
}

func (s *Server) handleBacktestTrades(c *gin.Context) {
	runID := c.Param("run_id")

	trades, err := s.repo.GetBacktestTrades(c.Request.Context(), runID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load backtest trades")
		return
	}
	successResponse(c, trades)
}
