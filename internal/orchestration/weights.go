package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache caches compiled JSON schemas by URL.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// weightsSchema validates a manual strategy-weight override file: an object
// mapping strategy ids to weights within the optimizer's clamp range.
var weightsSchema = map[string]any{
	"type": "object",
	"additionalProperties": map[string]any{
		"type":    "number",
		"minimum": minStrategyWeight,
		"maximum": maxStrategyWeight,
	},
}

// LoadWeightOverrides reads and validates a weights override file. Operators
// use it to pin or reset strategy weights outside the learning loop.
func LoadWeightOverrides(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}

	compiled, err := compileWeightsSchema()
	if err != nil {
		return nil, err
	}
	if err := compiled.Validate(parsed); err != nil {
		return nil, fmt.Errorf("weights file invalid: %w", err)
	}

	var weights map[string]float64
	if err := json.Unmarshal(raw, &weights); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	return weights, nil
}

// compileWeightsSchema returns the cached compiled schema, compiling and
// caching it on first use.
func compileWeightsSchema() (*jsonschema.Schema, error) {
	const schemaURL = "schema://strategy-weights.json"
	if cached, ok := schemaCache.Load(schemaURL); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The jsonschema library expects a parsed JSON value, not raw bytes.
	defBytes, err := json.Marshal(weightsSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal weights schema: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse weights schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add weights schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile weights schema: %w", err)
	}
	schemaCache.Store(schemaURL, compiled)
	return compiled, nil
}

// ApplyWeightOverrides writes operator-pinned weights into the learning
// store, recording the override in each strategy's history.
func ApplyWeightOverrides(ctx context.Context, states LearningStore, weights map[string]float64) error {
	for strategyID, w := range weights {
		state, err := states.StrategyState(ctx, strategyID)
		if err != nil {
			return fmt.Errorf("load state for %s: %w", strategyID, err)
		}
		if state == nil {
			state = &StrategyLearningState{StrategyID: strategyID}
		}
		state.CurrentWeight = w
		state.History = append(state.History, WeightChange{
			Timestamp: time.Now(),
			Weight:    w,
		})
		if err := states.SaveStrategyState(ctx, state); err != nil {
			return fmt.Errorf("save state for %s: %w", strategyID, err)
		}
	}
	return nil
}
