// Package backtest replays a symbol's stored decision history through the
// position lifecycle engine and persists the outcome.
package backtest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"okx-trading-bot/internal/database"
	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/logging"
)

// Options shape one backtest run. Zero values fall back to the engine
// defaults (leverage 1, no fees, 10k starting equity).
type Options struct {
	Symbol        string   `json:"symbol"`
	InitialEquity float64  `json:"initial_equity"`
	FeeRate       float64  `json:"fee_rate"`
	Leverage      float64  `json:"leverage"`
	SizeOverride  *float64 `json:"size_override,omitempty"`
}

// Runner loads decision history, replays it and stores the results.
type Runner struct {
	repo   *database.Repository
	logger *logging.Logger
}

// NewRunner creates a backtest runner.
func NewRunner(repo *database.Repository, logger *logging.Logger) *Runner {
	return &Runner{repo: repo, logger: logger.WithComponent("backtest")}
}

const defaultInitialEquity = 10000.0

// Run replays the stored decision history for opts.Symbol and persists the
// run. Returns the engine result and the stored run id.
func (r *Runner) Run(ctx context.Context, opts Options) (*engine.Result, string, error) {
	if opts.Symbol == "" {
		return nil, "", fmt.Errorf("symbol is required")
	}

	records, err := r.repo.GetDecisionsAscending(ctx, opts.Symbol)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load decision history: %w", err)
	}

	events := EventsFromRecords(records)
	if len(events) == 0 {
		return nil, "", fmt.Errorf("no usable decision history for %s", opts.Symbol)
	}

	initialEquity := opts.InitialEquity
	if initialEquity <= 0 {
		initialEquity = defaultInitialEquity
	}

	cfg := engine.Config{
		InitialEquity: initialEquity,
		FeeRate:       opts.FeeRate,
		Leverage:      opts.Leverage,
		SizeOverride:  opts.SizeOverride,
	}

	result := engine.Replay(events, cfg)

	runID := uuid.New().String()
	run := &database.BacktestRun{
		RunID:          runID,
		Symbol:         opts.Symbol,
		StartingEquity: result.Metrics.StartingEquity,
		EndingEquity:   result.Metrics.EndingEquity,
		TotalPnL:       result.Metrics.TotalPnL,
		NumTrades:      result.Metrics.NumTrades,
		WinRate:        result.Metrics.WinRate,
		MaxDrawdown:    result.Metrics.MaxDrawdown,
		LeverageUsed:   result.Metrics.LeverageUsed,
		SizeOverride:   result.Metrics.PositionSizeOverride,
		FeeRate:        opts.FeeRate,
	}

	trades := make([]database.BacktestTradeRecord, 0, len(result.Trades))
	for _, t := range result.Trades {
		trades = append(trades, database.BacktestTradeRecord{
			RunID:      runID,
			EnterTime:  t.EnterTime,
			ExitTime:   t.ExitTime,
			Side:       string(t.Side),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Size:       t.Size,
			PnL:        t.PnL,
			ReturnPct:  t.ReturnPct,
			ExitReason: string(t.ExitReason),
		})
	}

	if _, err := r.repo.SaveBacktestRun(ctx, run, trades); err != nil {
		return nil, "", fmt.Errorf("failed to persist backtest run: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"symbol":     opts.Symbol,
		"run_id":     runID,
		"events":     len(events),
		"num_trades": result.Metrics.NumTrades,
		"total_pnl":  result.Metrics.TotalPnL,
	}).Info("backtest run complete")

	return &result, runID, nil
}

// EventsFromRecords maps stored decisions to engine signal events. Rows
// whose action does not parse are dropped; rows with a bad price are kept
// and skipped inside the engine.
func EventsFromRecords(records []database.DecisionRecord) []engine.SignalEvent {
	events := make([]engine.SignalEvent, 0, len(records))
	for _, rec := range records {
		action, ok := parseAction(rec.Action)
		if !ok {
			continue
		}
		events = append(events, engine.SignalEvent{
			Time:         rec.CreatedAt,
			Price:        rec.Price,
			Action:       action,
			ProposedSize: rec.PositionSize,
			TakeProfit:   rec.TakeProfit,
			StopLoss:     rec.StopLoss,
			Confidence:   engine.Confidence(rec.Confidence),
		})
	}
	return events
}

func parseAction(s string) (engine.Action, bool) {
	switch engine.Action(s) {
	case engine.ActionHold, engine.ActionOpenLong, engine.ActionOpenShort:
		return engine.Action(s), true
	default:
		return "", false
	}
}
