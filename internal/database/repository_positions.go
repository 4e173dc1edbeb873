package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNoOpenPosition is returned when a symbol has no open simulated
// position.
var ErrNoOpenPosition = errors.New("no open position")

const simPositionColumns = `id, symbol, side, size, entry_price, take_profit, stop_loss,
	status, opened_at, closed_at, exit_price, pnl, return_pct, exit_reason`

// OpenSimPosition inserts a new open simulated position.
func (r *Repository) OpenSimPosition(ctx context.Context, p *SimPosition) (int64, error) {
	query := `
		INSERT INTO sim_positions (symbol, side, size, entry_price, take_profit, stop_loss, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'open', $7)
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		p.Symbol, p.Side, p.Size, p.EntryPrice, p.TakeProfit, p.StopLoss, p.OpenedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to open sim position: %w", err)
	}
	return id, nil
}

// CloseSimPosition marks a position closed with its realized outcome.
func (r *Repository) CloseSimPosition(ctx context.Context, id int64, exitPrice, pnl, returnPct float64, exitReason string, closedAt time.Time) error {
	query := `
		UPDATE sim_positions
		SET status = 'closed', exit_price = $2, pnl = $3, return_pct = $4, exit_reason = $5, closed_at = $6
		WHERE id = $1 AND status = 'open'
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, exitPrice, pnl, returnPct, exitReason, closedAt)
	if err != nil {
		return fmt.Errorf("failed to close sim position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenPosition
	}
	return nil
}

func scanSimPosition(row pgx.Row) (*SimPosition, error) {
	var p SimPosition
	err := row.Scan(
		&p.ID, &p.Symbol, &p.Side, &p.Size, &p.EntryPrice, &p.TakeProfit, &p.StopLoss,
		&p.Status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.PnL, &p.ReturnPct, &p.ExitReason,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOpenSimPosition returns the single open position for a symbol, or
// ErrNoOpenPosition.
func (r *Repository) GetOpenSimPosition(ctx context.Context, symbol string) (*SimPosition, error) {
	query := fmt.Sprintf(`SELECT %s FROM sim_positions WHERE symbol = $1 AND status = 'open' ORDER BY opened_at DESC LIMIT 1`, simPositionColumns)

	p, err := scanSimPosition(r.db.Pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoOpenPosition
		}
		return nil, fmt.Errorf("failed to get open sim position: %w", err)
	}
	return p, nil
}

// ListSimPositions returns positions for a symbol, newest first.
func (r *Repository) ListSimPositions(ctx context.Context, symbol string, limit int) ([]SimPosition, error) {
	query := fmt.Sprintf(`SELECT %s FROM sim_positions WHERE symbol = $1 ORDER BY opened_at DESC LIMIT $2`, simPositionColumns)

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sim positions: %w", err)
	}
	defer rows.Close()

	positions := []SimPosition{}
	for rows.Next() {
		var p SimPosition
		err := rows.Scan(
			&p.ID, &p.Symbol, &p.Side, &p.Size, &p.EntryPrice, &p.TakeProfit, &p.StopLoss,
			&p.Status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.PnL, &p.ReturnPct, &p.ExitReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sim position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sim positions: %w", err)
	}
	return positions, nil
}

// ClearSimPositions removes the simulated position history for a symbol.
func (r *Repository) ClearSimPositions(ctx context.Context, symbol string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sim_positions WHERE symbol = $1`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to clear sim positions: %w", err)
	}
	return tag.RowsAffected(), nil
}
