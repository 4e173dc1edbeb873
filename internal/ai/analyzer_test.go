package ai

import (
	"strings"
	"testing"
)

const validJSON = `{
  "trading_decision": {
    "action": "open_long",
    "confidence_level": "high",
    "reason": "momentum breakout"
  },
  "position_management": {
    "position_size": 0.5,
    "stop_loss_price": 3450.0,
    "take_profit_price": 3580.0
  }
}`

func TestParseDecision_DirectJSON(t *testing.T) {
	d := ParseDecision(validJSON)

	if d.TradingDecision.Action != "open_long" {
		t.Errorf("action = %s, want open_long", d.TradingDecision.Action)
	}
	if d.PositionManagement.PositionSize != 0.5 {
		t.Errorf("size = %f, want 0.5", d.PositionManagement.PositionSize)
	}
	if d.PositionManagement.TakeProfitPrice != 3580 {
		t.Errorf("tp = %f, want 3580", d.PositionManagement.TakeProfitPrice)
	}
}

func TestParseDecision_EmbeddedJSON(t *testing.T) {
	response := "Based on my analysis of the market:\n\n" + validJSON + "\n\nGood luck."
	d := ParseDecision(response)

	if d.TradingDecision.Action != "open_long" {
		t.Errorf("action = %s, want open_long", d.TradingDecision.Action)
	}
	if d.PositionManagement.StopLossPrice != 3450 {
		t.Errorf("sl = %f, want 3450", d.PositionManagement.StopLossPrice)
	}
}

func TestParseDecision_SalvagesAction(t *testing.T) {
	response := `I think the "action": "open_short" is right here, "reason": "lower highs forming" but I will not emit your template.`
	d := ParseDecision(response)

	if d.TradingDecision.Action != "open_short" {
		t.Errorf("action = %s, want open_short", d.TradingDecision.Action)
	}
	if d.TradingDecision.Reason != "lower highs forming" {
		t.Errorf("reason = %q", d.TradingDecision.Reason)
	}
	// salvaged decisions never carry trusted sizes or triggers
	if d.PositionManagement.PositionSize != 0 {
		t.Errorf("salvaged size must be 0, got %f", d.PositionManagement.PositionSize)
	}
}

func TestParseDecision_GarbageFallsBackToHold(t *testing.T) {
	d := ParseDecision("the market looks uncertain today")

	if d.TradingDecision.Action != "hold" {
		t.Errorf("action = %s, want hold", d.TradingDecision.Action)
	}
	if d.PositionManagement.PositionSize != 0 {
		t.Errorf("size = %f, want 0", d.PositionManagement.PositionSize)
	}
}

func TestParseDecision_InvalidActionRejected(t *testing.T) {
	response := strings.Replace(validJSON, "open_long", "close_all", 1)
	d := ParseDecision(response)

	if d.TradingDecision.Action != "hold" {
		t.Errorf("unknown action must degrade to hold, got %s", d.TradingDecision.Action)
	}
}

func TestValidateDecision(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		confidence string
		want       bool
	}{
		{"valid hold", "hold", "low", true},
		{"valid long", "open_long", "high", true},
		{"valid short", "open_short", "medium", true},
		{"unknown action", "close_position", "high", false},
		{"unknown confidence", "hold", "certain", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decision
			d.TradingDecision.Action = tt.action
			d.TradingDecision.ConfidenceLevel = tt.confidence
			if got := ValidateDecision(d); got != tt.want {
				t.Errorf("ValidateDecision = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildUserPrompt_IncludesSections(t *testing.T) {
	market := MarketSnapshot{CurrentPrice: 3500}
	account := AccountSnapshot{AvailableUSDT: 100, TotalEquity: 120}
	position := PositionSnapshot{Side: "flat", Leverage: 50}
	history := []HistoryEntry{{Action: "hold", Price: 3490, Confidence: "medium"}}

	prompt, err := buildUserPrompt(market, account, position, history)
	if err != nil {
		t.Fatalf("buildUserPrompt failed: %v", err)
	}

	for _, section := range []string{"market_data", "account_status", "position_info", "decision_history"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("prompt missing section %q", section)
		}
	}
}
