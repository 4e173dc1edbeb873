package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"okx-trading-bot/internal/ai/llm"
	"okx-trading-bot/internal/logging"
	"okx-trading-bot/internal/okx"
)

// Decision is the validated LLM trading decision. It mirrors the JSON
// template the model is instructed to answer with.
type Decision struct {
	TradingDecision struct {
		Action          string `json:"action"`
		ConfidenceLevel string `json:"confidence_level"`
		Reason          string `json:"reason"`
	} `json:"trading_decision"`
	PositionManagement struct {
		PositionSize    float64 `json:"position_size"`
		StopLossPrice   float64 `json:"stop_loss_price"`
		TakeProfitPrice float64 `json:"take_profit_price"`
	} `json:"position_management"`
}

// MarketSnapshot is the multi-timeframe market context sent to the model.
type MarketSnapshot struct {
	CurrentPrice float64     `json:"current_price"`
	Kline5m      []okx.Kline `json:"kline_5min"`
	Kline30m     []okx.Kline `json:"kline_30min"`
	Kline2h      []okx.Kline `json:"kline_2h"`
	Kline1d      []okx.Kline `json:"kline_1d"`
}

// AccountSnapshot is the account context sent to the model.
type AccountSnapshot struct {
	AvailableUSDT float64 `json:"available_usdt"`
	TotalEquity   float64 `json:"total_equity"`
	LastProfit    float64 `json:"last_profit"`
}

// PositionSnapshot is the current exposure context sent to the model.
type PositionSnapshot struct {
	Side       string  `json:"position_side"`
	Size       float64 `json:"position_size"`
	EntryPrice float64 `json:"entry_price"`
	Leverage   float64 `json:"leverage"`
}

// HistoryEntry summarizes one past decision for the prompt.
type HistoryEntry struct {
	Time       string  `json:"time"`
	Action     string  `json:"action"`
	Price      float64 `json:"price"`
	Confidence string  `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Analyzer asks the LLM for a trading decision and parses the answer. A
// failed request or an unusable answer degrades to a low-confidence hold so
// the caller's cycle never aborts.
type Analyzer struct {
	client *llm.Client
	logger *logging.Logger

	mu         sync.Mutex
	lastProfit float64

	minOrderSize float64
	maxOrderSize float64
	leverage     float64
}

// NewAnalyzer creates an analyzer on top of the given LLM client.
func NewAnalyzer(client *llm.Client, logger *logging.Logger, minOrderSize, maxOrderSize, leverage float64) *Analyzer {
	return &Analyzer{
		client:       client,
		logger:       logger.WithComponent("ai"),
		minOrderSize: minOrderSize,
		maxOrderSize: maxOrderSize,
		leverage:     leverage,
	}
}

// UpdateProfit records the realized result of the previous strategy cycle;
// it is fed back into the next system prompt.
func (a *Analyzer) UpdateProfit(profit float64) {
	a.mu.Lock()
	a.lastProfit = profit
	a.mu.Unlock()
}

// Decide runs one decision cycle. The returned decision is always valid; on
// any failure it is the conservative hold.
func (a *Analyzer) Decide(symbol string, market MarketSnapshot, account AccountSnapshot, position PositionSnapshot, history []HistoryEntry) Decision {
	a.mu.Lock()
	account.LastProfit = a.lastProfit
	a.mu.Unlock()

	system := a.systemPrompt(symbol, account)
	user, err := buildUserPrompt(market, account, position, history)
	if err != nil {
		a.logger.WithError(err).Error("failed to build prompt")
		return holdDecision("prompt build failed")
	}

	response, err := a.client.Complete(system, user)
	if err != nil {
		a.logger.WithError(err).Error("LLM request failed")
		return holdDecision(fmt.Sprintf("LLM request failed: %v", err))
	}

	decision := ParseDecision(response)
	a.logger.WithField("action", decision.TradingDecision.Action).
		WithField("confidence", decision.TradingDecision.ConfidenceLevel).
		Info("AI decision parsed")
	return decision
}

// systemPrompt renders the trading persona with the live account state and
// instrument limits filled in.
func (a *Analyzer) systemPrompt(symbol string, account AccountSnapshot) string {
	baseAsset := symbol
	if idx := strings.Index(symbol, "-"); idx > 0 {
		baseAsset = symbol[:idx]
	}
	return fmt.Sprintf(`You are a top derivatives trader specializing in %[1]s perpetual swaps on OKX, competing against other skilled traders.
Goal: steady profit with a small live account through precise, selective entries.
Constraints:
1. Default leverage is %[2]gx for every trade.
2. Order size must stay between %[3]g and %[4]g %[1]s.
3. The account is always flat before a new trade, so only one direction can be traded at a time.
4. Every entry must include take-profit and stop-loss prices; they are not changed until one of them fills. The take-profit must be at least 0.5%% away from the entry price.
5. Base your decision on the provided multi-timeframe klines (5m/30m/2h/1d) and volatility; prefer staying flat over forcing a weak setup.
Account state:
- available balance: %.6f USDT
- total equity: %.6f USDT
- previous strategy profit: %.6f USDT (negative when a loss)
Answer with exactly this JSON and nothing else:
{
  "trading_decision": {
    "action": "hold",
    "confidence_level": "medium",
    "reason": ""
  },
  "position_management": {
    "position_size": 0.1,
    "stop_loss_price": 3450.0,
    "take_profit_price": 3580.0
  }
}
action is one of open_long, open_short, hold; confidence_level is one of high, medium, low; position_size is in %[1]s, 0 when holding.`,
		baseAsset, a.leverage, a.minOrderSize, a.maxOrderSize,
		account.AvailableUSDT, account.TotalEquity, account.LastProfit)
}

func buildUserPrompt(market MarketSnapshot, account AccountSnapshot, position PositionSnapshot, history []HistoryEntry) (string, error) {
	if history == nil {
		history = []HistoryEntry{}
	}
	payload := struct {
		MarketData      MarketSnapshot   `json:"market_data"`
		AccountStatus   AccountSnapshot  `json:"account_status"`
		PositionInfo    PositionSnapshot `json:"position_info"`
		DecisionHistory []HistoryEntry   `json:"decision_history"`
	}{market, account, position, history}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt payload: %w", err)
	}
	return string(data), nil
}

var (
	templateRe = regexp.MustCompile(`(?s)\{\s*"trading_decision"\s*:\s*\{[^{}]*\}\s*,\s*"position_management"\s*:\s*\{[^{}]*\}\s*\}`)
	actionRe   = regexp.MustCompile(`(?i)"action"\s*:\s*"(\w+)"`)
	reasonRe   = regexp.MustCompile(`"reason"\s*:\s*"([^"]*)"`)
)

// ParseDecision extracts a decision from the raw model output. It tries the
// whole response as JSON first, then each embedded template-shaped block,
// then a field-by-field salvage; anything unusable becomes a hold.
func ParseDecision(response string) Decision {
	var decision Decision
	if err := json.Unmarshal([]byte(response), &decision); err == nil && ValidateDecision(decision) {
		return decision
	}

	for _, match := range templateRe.FindAllString(response, -1) {
		var d Decision
		if err := json.Unmarshal([]byte(match), &d); err == nil && ValidateDecision(d) {
			return d
		}
	}

	return salvageDecision(response)
}

// salvageDecision rebuilds a minimal decision from loose fields in a
// malformed response. Only the action and reason are trusted; sizes and
// trigger prices are zeroed.
func salvageDecision(response string) Decision {
	decision := holdDecision("decision rebuilt from malformed response")
	decision.TradingDecision.ConfidenceLevel = string(confidenceMedium)

	if m := actionRe.FindStringSubmatch(response); m != nil {
		action := strings.ToLower(m[1])
		switch action {
		case "hold", "open_long", "open_short":
			decision.TradingDecision.Action = action
		}
	}
	if m := reasonRe.FindStringSubmatch(response); m != nil && strings.TrimSpace(m[1]) != "" {
		decision.TradingDecision.Reason = strings.TrimSpace(m[1])
	}
	return decision
}

type confidence string

const (
	confidenceHigh   confidence = "high"
	confidenceMedium confidence = "medium"
	confidenceLow    confidence = "low"
)

// ValidateDecision checks the decision against the template: known action,
// known confidence level and all fields present.
func ValidateDecision(d Decision) bool {
	switch d.TradingDecision.Action {
	case "hold", "open_long", "open_short":
	default:
		return false
	}
	switch confidence(d.TradingDecision.ConfidenceLevel) {
	case confidenceHigh, confidenceMedium, confidenceLow:
	default:
		return false
	}
	return true
}

func holdDecision(reason string) Decision {
	var d Decision
	d.TradingDecision.Action = "hold"
	d.TradingDecision.ConfidenceLevel = string(confidenceLow)
	d.TradingDecision.Reason = reason
	return d
}
