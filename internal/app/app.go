// Package app wires the engine together: it opens the store, registers the
// navigation strategies and builds sessions and optimizers from config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyflow/studyflow/internal/config"
	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/elo"
	"github.com/studyflow/studyflow/internal/orchestration"
	"github.com/studyflow/studyflow/internal/response"
	"github.com/studyflow/studyflow/internal/session"
	"github.com/studyflow/studyflow/internal/srs"
	"github.com/studyflow/studyflow/internal/store"
)

// schedulingAgentID marks reviews produced by this engine so competing
// schedulers can recognize their own appointments.
const schedulingAgentID = "studyflow"

// App holds the long-lived wiring shared by every command.
type App struct {
	Store    *store.Store
	Registry *content.Registry
	Cfg      config.Config
	Log      *slog.Logger
}

// New opens the database and registers the navigation strategies.
func New(cfg config.Config) (*App, error) {
	log := cfg.Logger()

	dbPath := cfg.DBPath
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		Store:    st,
		Registry: content.NewRegistry(),
		Cfg:      cfg,
		Log:      log,
	}

	a.Registry.Register("adaptive", func(courseID string, cards content.Catalog) content.Navigator {
		weight := a.strategyWeight(context.Background(), "adaptive")
		return NewAdaptiveNavigator("adaptive", courseID, cfg.UserID, cards, st, weight, log)
	})

	return a, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// Strategies lists the strategy ids the optimizer adapts.
func (a *App) Strategies() []string {
	return []string{a.Cfg.Strategy}
}

// strategyWeight loads a strategy's learned weight, defaulting to 1.0.
func (a *App) strategyWeight(ctx context.Context, strategyID string) float64 {
	st, err := a.Store.StrategyState(ctx, strategyID)
	if err != nil {
		a.Log.Warn("load strategy weight failed, using default",
			"strategyId", strategyID, "error", err)
		return 1.0
	}
	if st == nil || st.CurrentWeight <= 0 {
		return 1.0
	}
	return st.CurrentWeight
}

// NewSession builds a ready-to-prepare session controller for the configured
// user and course.
func (a *App) NewSession(ctx context.Context) (*session.Controller, error) {
	cfg := a.Cfg

	reg, err := a.Store.GetRegistration(ctx, cfg.CourseID, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}

	nav, err := a.Registry.New(cfg.Strategy, cfg.CourseID, a.Store)
	if err != nil {
		return nil, err
	}

	srsSvc := srs.NewService(a.Store, a.Store, cfg.UserID, schedulingAgentID, a.Log)
	eloSvc := elo.NewService(a.Store, a.Store, a.Log)
	proc := response.NewProcessor(srsSvc, eloSvc, reg, response.DefaultLimits(), a.Log)

	deviations := orchestration.NewWeightDeviationSource(a.Store, a.Strategies(), a.Log)
	recorder := orchestration.NewRecorder(a.Store, deviations, a.Log)
	recorder.SetTargetAccuracy(cfg.TargetAccuracy)

	ctrl := session.NewController(
		[]session.ContentSource{{CourseID: cfg.CourseID, Navigator: nav}},
		a.Store, proc, srsSvc, a.Store, recorder,
		session.Config{
			UserID:         cfg.UserID,
			SessionSeconds: cfg.SessionSeconds,
			ContentLimit:   cfg.ContentLimit,
		},
		a.Log,
	)
	return ctrl, nil
}

// NewOptimizer builds the weight-adaptation loop over the recorded outcomes.
func (a *App) NewOptimizer() *orchestration.Optimizer {
	opt := orchestration.NewOptimizer(a.Store, a.Store, a.Cfg.CourseID, a.Strategies(), a.Log)
	opt.SetLearningRate(a.Cfg.LearningRate)
	return opt
}

// NewOptimizerRunner builds the scheduled daemon form of the optimizer.
func (a *App) NewOptimizerRunner() *orchestration.Runner {
	return orchestration.NewRunner(a.NewOptimizer(), a.Cfg.OptimizerInterval, a.Log)
}
