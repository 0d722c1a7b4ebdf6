package orchestration

import (
	"context"
	"log/slog"
	"time"
)

// WeightDeviationSource derives each strategy's current deviation from its
// learned weight: deviation = weight − 1, clamped to [−1, 1]. A strategy
// with no learned state deviates 0.
type WeightDeviationSource struct {
	states     LearningStore
	strategies []string
	log        *slog.Logger
}

// NewWeightDeviationSource creates a deviation source over the given
// strategies.
func NewWeightDeviationSource(states LearningStore, strategies []string, log *slog.Logger) *WeightDeviationSource {
	if log == nil {
		log = slog.Default()
	}
	return &WeightDeviationSource{
		states:     states,
		strategies: strategies,
		log:        log.With("component", "orchestration"),
	}
}

// CurrentDeviations reports the live deviation per strategy. A state load
// failure degrades that strategy to 0 rather than failing the snapshot.
func (s *WeightDeviationSource) CurrentDeviations() map[string]float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	devs := make(map[string]float64, len(s.strategies))
	for _, id := range s.strategies {
		devs[id] = 0
		st, err := s.states.StrategyState(ctx, id)
		if err != nil {
			s.log.Warn("load strategy state for deviation failed",
				"strategyId", id, "error", err)
			continue
		}
		if st == nil {
			continue
		}
		d := st.CurrentWeight - 1
		if d > 1 {
			d = 1
		}
		if d < -1 {
			d = -1
		}
		devs[id] = d
	}
	return devs
}
