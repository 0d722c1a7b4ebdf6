package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studyflow/studyflow/internal/orchestration"
)

// Learning state is a small document per strategy; storing it as one JSON
// blob keeps the row in lockstep with the struct without a migration per
// field.

// StrategyState loads a strategy's learning state, (nil, nil) when the
// strategy has never been optimized.
func (s *Store) StrategyState(ctx context.Context, strategyID string) (*orchestration.StrategyLearningState, error) {
	var blob string
	err := s.db.GetContext(ctx, &blob,
		`SELECT state FROM strategy_states WHERE strategy_id = ?`, strategyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load strategy state %s: %w", strategyID, err)
	}

	var st orchestration.StrategyLearningState
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return nil, fmt.Errorf("unmarshal strategy state %s: %w", strategyID, err)
	}
	return &st, nil
}

// SaveStrategyState upserts a strategy's learning state.
func (s *Store) SaveStrategyState(ctx context.Context, st *orchestration.StrategyLearningState) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal strategy state %s: %w", st.StrategyID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO strategy_states (strategy_id, state)
		VALUES (?, ?)`, st.StrategyID, string(blob))
	if err != nil {
		return fmt.Errorf("save strategy state %s: %w", st.StrategyID, err)
	}
	return nil
}
