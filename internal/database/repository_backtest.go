package database

import (
	"context"
	"fmt"
)

// SaveBacktestRun saves a backtest run and its trades in one transaction.
func (r *Repository) SaveBacktestRun(ctx context.Context, run *BacktestRun, trades []BacktestTradeRecord) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO backtest_runs (
			run_id, symbol, starting_equity, ending_equity, total_pnl,
			num_trades, win_rate, max_drawdown, leverage_used, size_override, fee_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var runRowID int64
	err = tx.QueryRow(ctx, query,
		run.RunID, run.Symbol, run.StartingEquity, run.EndingEquity, run.TotalPnL,
		run.NumTrades, run.WinRate, run.MaxDrawdown, run.LeverageUsed, run.SizeOverride, run.FeeRate,
	).Scan(&runRowID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert backtest run: %w", err)
	}

	if len(trades) > 0 {
		tradeQuery := `
			INSERT INTO backtest_trades (
				run_id, enter_time, exit_time, side, entry_price, exit_price,
				size, pnl, return_pct, exit_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		for _, trade := range trades {
			_, err = tx.Exec(ctx, tradeQuery,
				run.RunID, trade.EnterTime, trade.ExitTime, trade.Side, trade.EntryPrice, trade.ExitPrice,
				trade.Size, trade.PnL, trade.ReturnPct, trade.ExitReason,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert backtest trade: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return runRowID, nil
}

// GetBacktestRuns returns recent backtest runs for a symbol, newest first.
func (r *Repository) GetBacktestRuns(ctx context.Context, symbol string, limit int) ([]BacktestRun, error) {
	query := `
		SELECT id, run_id, symbol, created_at, starting_equity, ending_equity, total_pnl,
			   num_trades, win_rate, max_drawdown, leverage_used, size_override, fee_rate
		FROM backtest_runs
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	runs := []BacktestRun{}
	for rows.Next() {
		var run BacktestRun
		err := rows.Scan(
			&run.ID, &run.RunID, &run.Symbol, &run.CreatedAt, &run.StartingEquity, &run.EndingEquity, &run.TotalPnL,
			&run.NumTrades, &run.WinRate, &run.MaxDrawdown, &run.LeverageUsed, &run.SizeOverride, &run.FeeRate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest runs: %w", err)
	}
	return runs, nil
}

// GetBacktestTrades returns the trades of one backtest run in entry order.
func (r *Repository) GetBacktestTrades(ctx context.Context, runID string) ([]BacktestTradeRecord, error) {
	query := `
		SELECT id, run_id, enter_time, exit_time, side, entry_price, exit_price,
			   size, pnl, return_pct, exit_reason
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY enter_time ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest trades: %w", err)
	}
	defer rows.Close()

	trades := []BacktestTradeRecord{}
	for rows.Next() {
		var trade BacktestTradeRecord
		err := rows.Scan(
			&trade.ID, &trade.RunID, &trade.EnterTime, &trade.ExitTime, &trade.Side, &trade.EntryPrice, &trade.ExitPrice,
			&trade.Size, &trade.PnL, &trade.ReturnPct, &trade.ExitReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest trades: %w", err)
	}
	return trades, nil
}
