package orchestration

import "time"

const (
	// minObservations is the fewest (deviation, outcome) pairs a regression
	// will run on.
	minObservations = 3

	// varianceEpsilon guards the slope denominator against a deviation set
	// with no spread.
	varianceEpsilon = 1e-10
)

// Observation pairs a strategy's parameter deviation with the outcome it
// produced. Weight defaults to 1 when a caller has no reason to prefer one
// observation over another.
type Observation struct {
	Deviation float64 // [-1, 1]
	Outcome   float64 // [0, 1]
	Weight    float64
}

// RegressionResult is a weighted least-squares fit of outcome on deviation.
// A positive gradient means a more aggressive use of the strategy correlated
// with better outcomes; near zero means the current setting is near-optimal.
type RegressionResult struct {
	Gradient   float64
	Intercept  float64
	RSquared   float64 // always in [0,1]
	SampleSize int
	ComputedAt time.Time
}

// ComputeStrategyGradient fits outcome on deviation by weighted ordinary
// least squares. Returns nil with fewer than minObservations observations.
// When the deviations carry no variance the gradient is 0 with RSquared 0
// rather than a division by zero.
func ComputeStrategyGradient(obs []Observation) *RegressionResult {
	if len(obs) < minObservations {
		return nil
	}

	var sumW, sumWX, sumWY float64
	for _, o := range obs {
		w := o.Weight
		if w <= 0 {
			w = 1
		}
		sumW += w
		sumWX += w * o.Deviation
		sumWY += w * o.Outcome
	}
	meanX := sumWX / sumW
	meanY := sumWY / sumW

	var sxx, sxy float64
	for _, o := range obs {
		w := o.Weight
		if w <= 0 {
			w = 1
		}
		dx := o.Deviation - meanX
		dy := o.Outcome - meanY
		sxx += w * dx * dx
		sxy += w * dx * dy
	}

	result := &RegressionResult{
		SampleSize: len(obs),
		ComputedAt: time.Now(),
	}
	if sxx < varianceEpsilon {
		result.Gradient = 0
		result.Intercept = meanY
		result.RSquared = 0
		return result
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var ssRes, ssTot float64
	for _, o := range obs {
		w := o.Weight
		if w <= 0 {
			w = 1
		}
		pred := intercept + slope*o.Deviation
		ssRes += w * (o.Outcome - pred) * (o.Outcome - pred)
		ssTot += w * (o.Outcome - meanY) * (o.Outcome - meanY)
	}

	rSquared := 0.0
	if ssTot > varianceEpsilon {
		rSquared = 1 - ssRes/ssTot
	}
	if rSquared < 0 {
		rSquared = 0
	}
	if rSquared > 1 {
		rSquared = 1
	}

	result.Gradient = slope
	result.Intercept = intercept
	result.RSquared = rSquared
	return result
}

// CollectObservations extracts the (deviation, outcome) pairs for one
// strategy across many outcome records, skipping records that carry no
// deviation for it.
func CollectObservations(outcomes []UserOutcomeRecord, strategyID string) []Observation {
	var obs []Observation
	for _, rec := range outcomes {
		dev, ok := rec.Deviations[strategyID]
		if !ok {
			continue
		}
		obs = append(obs, Observation{Deviation: dev, Outcome: rec.OutcomeValue, Weight: 1})
	}
	return obs
}
