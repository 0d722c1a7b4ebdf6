package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultLearningRate scales how far one optimization pass moves a weight.
	DefaultLearningRate = 0.1

	// Weight bounds keep a runaway regression from silencing or dominating
	// the mix.
	minStrategyWeight = 0.1
	maxStrategyWeight = 3.0

	// nearZeroGradient below which the strategy is considered near-optimal.
	nearZeroGradient = 0.01
)

// WeightChange is one step in a strategy's adaptation history.
type WeightChange struct {
	Timestamp time.Time
	Weight    float64
	Gradient  float64
	RSquared  float64
}

// StrategyLearningState is the persisted adaptation state for one strategy.
type StrategyLearningState struct {
	StrategyID    string
	CurrentWeight float64
	Regression    *RegressionResult
	History       []WeightChange
}

// LearningStore persists strategy learning state.
type LearningStore interface {
	StrategyState(ctx context.Context, strategyID string) (*StrategyLearningState, error)
	SaveStrategyState(ctx context.Context, st *StrategyLearningState) error
}

// Optimizer is the slow adaptation loop: it regresses recorded outcomes on
// strategy deviations and nudges each strategy's weight along the gradient,
// scaled by how much of the outcome variance the fit explains.
type Optimizer struct {
	outcomes     OutcomeStore
	states       LearningStore
	courseID     string
	strategies   []string
	learningRate float64
	log          *slog.Logger
}

// NewOptimizer creates an optimizer over the given strategies.
func NewOptimizer(outcomes OutcomeStore, states LearningStore, courseID string, strategies []string, log *slog.Logger) *Optimizer {
	if log == nil {
		log = slog.Default()
	}
	return &Optimizer{
		outcomes:     outcomes,
		states:       states,
		courseID:     courseID,
		strategies:   strategies,
		learningRate: DefaultLearningRate,
		log:          log.With("component", "optimizer"),
	}
}

// SetLearningRate overrides how far one pass moves a weight. Non-positive
// values are ignored.
func (o *Optimizer) SetLearningRate(rate float64) {
	if rate > 0 {
		o.learningRate = rate
	}
}

// Run performs one optimization pass across all strategies. A strategy with
// insufficient observations is skipped, not failed.
func (o *Optimizer) Run(ctx context.Context) error {
	recorded, err := o.outcomes.UserOutcomes(ctx, o.courseID)
	if err != nil {
		return fmt.Errorf("load outcomes for %s: %w", o.courseID, err)
	}

	for _, strategyID := range o.strategies {
		if err := o.optimizeStrategy(ctx, strategyID, recorded); err != nil {
			return err
		}
	}
	return nil
}

func (o *Optimizer) optimizeStrategy(ctx context.Context, strategyID string, recorded []UserOutcomeRecord) error {
	obs := CollectObservations(recorded, strategyID)
	regression := ComputeStrategyGradient(obs)
	if regression == nil {
		o.log.Debug("insufficient observations, skipping",
			"strategy", strategyID, "observations", len(obs))
		return nil
	}

	state, err := o.states.StrategyState(ctx, strategyID)
	if err != nil {
		return fmt.Errorf("load learning state for %s: %w", strategyID, err)
	}
	if state == nil {
		state = &StrategyLearningState{StrategyID: strategyID, CurrentWeight: 1.0}
	}

	newWeight := state.CurrentWeight
	if abs(regression.Gradient) >= nearZeroGradient {
		newWeight = clampWeight(state.CurrentWeight +
			regression.Gradient*o.learningRate*regression.RSquared)
	}
	// A near-zero gradient leaves the weight alone: the appended history
	// entry still raises confidence in the current setting.

	state.Regression = regression
	state.CurrentWeight = newWeight
	state.History = append(state.History, WeightChange{
		Timestamp: regression.ComputedAt,
		Weight:    newWeight,
		Gradient:  regression.Gradient,
		RSquared:  regression.RSquared,
	})

	if err := o.states.SaveStrategyState(ctx, state); err != nil {
		return fmt.Errorf("save learning state for %s: %w", strategyID, err)
	}

	o.log.Info("strategy weight updated",
		"strategy", strategyID,
		"weight", newWeight,
		"gradient", regression.Gradient,
		"rSquared", regression.RSquared,
		"samples", regression.SampleSize)
	return nil
}

func clampWeight(w float64) float64 {
	if w < minStrategyWeight {
		return minStrategyWeight
	}
	if w > maxStrategyWeight {
		return maxStrategyWeight
	}
	return w
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
