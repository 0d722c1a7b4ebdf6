package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studyflow/studyflow/internal/orchestration"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Adapt strategy weights from recorded session outcomes",
	Long: "Regresses recorded outcome signals on strategy deviations and nudges\n" +
		"each strategy's weight along the gradient. Runs once by default, or\n" +
		"periodically with --daemon.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		if path, _ := cmd.Flags().GetString("weights"); path != "" {
			weights, err := orchestration.LoadWeightOverrides(path)
			if err != nil {
				return fmt.Errorf("load weight overrides: %w", err)
			}
			if err := orchestration.ApplyWeightOverrides(ctx, a.Store, weights); err != nil {
				return err
			}
			fmt.Printf("applied %d weight override(s)\n", len(weights))
		}

		if daemon, _ := cmd.Flags().GetBool("daemon"); daemon {
			runner := a.NewOptimizerRunner()
			if err := runner.Start(); err != nil {
				return fmt.Errorf("start optimizer: %w", err)
			}
			defer runner.Stop()
			fmt.Printf("optimizer running every %s, ctrl-c to stop\n", a.Cfg.OptimizerInterval)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			return nil
		}

		if err := a.NewOptimizer().Run(ctx); err != nil {
			return err
		}

		for _, id := range a.Strategies() {
			st, err := a.Store.StrategyState(ctx, id)
			if err != nil || st == nil {
				continue
			}
			fmt.Printf("%s: weight=%.3f", id, st.CurrentWeight)
			if st.Regression != nil {
				fmt.Printf(" gradient=%.4f r2=%.3f n=%d",
					st.Regression.Gradient, st.Regression.RSquared, st.Regression.SampleSize)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	optimizeCmd.Flags().Bool("daemon", false, "Keep running on the configured interval")
	optimizeCmd.Flags().String("weights", "", "JSON file of manual strategy weight overrides")
}
