package database

import (
	"context"
	"fmt"
)

// SaveDecision stores one AI decision and returns its row id.
func (r *Repository) SaveDecision(ctx context.Context, d *DecisionRecord) (int64, error) {
	query := `
		INSERT INTO decisions (
			decision_id, symbol, created_at, price, action, confidence, reason,
			position_size, stop_loss, take_profit, market_json, account_json, executed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		d.DecisionID, d.Symbol, d.CreatedAt, d.Price, d.Action, d.Confidence, d.Reason,
		d.PositionSize, d.StopLoss, d.TakeProfit, d.MarketJSON, d.AccountJSON, d.Executed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision: %w", err)
	}
	return id, nil
}

// MarkDecisionExecuted flags a decision as executed.
func (r *Repository) MarkDecisionExecuted(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE decisions SET executed = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark decision executed: %w", err)
	}
	return nil
}

const decisionColumns = `id, decision_id, symbol, created_at, price, action, confidence, reason,
	position_size, stop_loss, take_profit, market_json, account_json, executed`

func scanDecisions(ctx context.Context, r *Repository, query string, args ...interface{}) ([]DecisionRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	records := []DecisionRecord{}
	for rows.Next() {
		var d DecisionRecord
		err := rows.Scan(
			&d.ID, &d.DecisionID, &d.Symbol, &d.CreatedAt, &d.Price, &d.Action, &d.Confidence, &d.Reason,
			&d.PositionSize, &d.StopLoss, &d.TakeProfit, &d.MarketJSON, &d.AccountJSON, &d.Executed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return records, nil
}

// GetRecentDecisions returns the newest decisions for a symbol, newest first.
func (r *Repository) GetRecentDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM decisions WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2`, decisionColumns)
	return scanDecisions(ctx, r, query, symbol, limit)
}

// GetDecisionsAscending returns the full decision history for a symbol in
// chronological order, the shape the replay driver consumes.
func (r *Repository) GetDecisionsAscending(ctx context.Context, symbol string) ([]DecisionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM decisions WHERE symbol = $1 ORDER BY created_at ASC`, decisionColumns)
	return scanDecisions(ctx, r, query, symbol)
}

// GetDecisionsPaginated returns one page of decision history (newest first)
// plus the total row count.
func (r *Repository) GetDecisionsPaginated(ctx context.Context, symbol string, page, pageSize int) ([]DecisionRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM decisions WHERE symbol = $1`, symbol).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count decisions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM decisions WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, decisionColumns)
	records, err := scanDecisions(ctx, r, query, symbol, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ClearDecisions removes the decision history for a symbol and returns the
// number of deleted rows.
func (r *Repository) ClearDecisions(ctx context.Context, symbol string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM decisions WHERE symbol = $1`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to clear decisions: %w", err)
	}
	return tag.RowsAffected(), nil
}
